package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// OutlierDetector labels rows of a feature matrix as outliers given the expected
// fraction of anomalies. Implementations must be deterministic for identical input.
type OutlierDetector interface {
	Detect(rows [][]float64, contamination float64) ([]bool, error)
}

// IsolationForest is an OutlierDetector that scores rows by how few random
// axis-aligned splits are needed to isolate them.
type IsolationForest struct {
	Trees      int
	SampleSize int
	Seed       uint64
}

// NewIsolationForest returns a forest with the given seed and default sizing.
func NewIsolationForest(trees int, seed uint64) *IsolationForest {
	if trees <= 0 {
		trees = 100
	}
	return &IsolationForest{Trees: trees, SampleSize: 256, Seed: seed}
}

// ErrContamination is returned for a contamination fraction outside (0, 0.5].
var ErrContamination = errors.New("contamination must be in (0, 0.5]")

// Detect flags the ceil(contamination*n) rows with the highest anomaly score.
// Ties are broken by row order.
func (f *IsolationForest) Detect(rows [][]float64, contamination float64) ([]bool, error) {
	if !(contamination > 0 && contamination <= 0.5) {
		return nil, fmt.Errorf("%w: got %g", ErrContamination, contamination)
	}
	labels := make([]bool, len(rows))
	if len(rows) == 0 || len(rows[0]) == 0 {
		return labels, nil
	}
	scores := f.Scores(rows)
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	k := int(math.Ceil(contamination * float64(len(rows))))
	for _, idx := range order[:k] {
		labels[idx] = true
	}
	return labels, nil
}

// Scores returns the anomaly score in (0, 1] of every row; higher is more anomalous.
func (f *IsolationForest) Scores(rows [][]float64) []float64 {
	n := len(rows)
	scores := make([]float64, n)
	if n == 0 {
		return scores
	}
	psi := f.SampleSize
	if psi <= 0 || psi > n {
		psi = n
	}
	trees := f.Trees
	if trees <= 0 {
		trees = 100
	}
	rng := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))
	limit := int(math.Ceil(math.Log2(float64(psi))))

	depth := make([]float64, n)
	for t := 0; t < trees; t++ {
		sample := rng.Perm(n)[:psi]
		root := growTree(rows, sample, 0, limit, rng)
		for i, row := range rows {
			depth[i] += root.pathLength(row, 0)
		}
	}
	norm := averagePathLength(psi)
	for i := range scores {
		if norm == 0 {
			scores[i] = 0.5
			continue
		}
		scores[i] = math.Pow(2, -(depth[i]/float64(trees))/norm)
	}
	return scores
}

type isoNode struct {
	feature     int
	split       float64
	left, right *isoNode
	size        int
}

func growTree(rows [][]float64, idx []int, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}
	dims := len(rows[idx[0]])
	// Try features in random order until one is not constant across the node.
	for _, q := range rng.Perm(dims) {
		lo, hi := rows[idx[0]][q], rows[idx[0]][q]
		for _, i := range idx[1:] {
			v := rows[i][q]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if lo == hi {
			continue
		}
		p := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if rows[i][q] < p {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		return &isoNode{
			feature: q,
			split:   p,
			left:    growTree(rows, left, depth+1, limit, rng),
			right:   growTree(rows, right, depth+1, limit, rng),
		}
	}
	return &isoNode{size: len(idx)}
}

func (n *isoNode) pathLength(row []float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + averagePathLength(n.size)
	}
	if row[n.feature] < n.split {
		return n.left.pathLength(row, depth+1)
	}
	return n.right.pathLength(row, depth+1)
}

// averagePathLength is the expected path length of an unsuccessful BST search
// over n items.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}
