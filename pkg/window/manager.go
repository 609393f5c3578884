package window

import (
	"context"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// Loader fetches a subject's persisted window.
type Loader interface {
	LoadWindow(ctx context.Context, subjectID string, policy model.WindowPolicy) ([]model.Reading, error)
}

// Manager keeps a bounded, time-ordered history per subject. Recently used
// windows stay in memory; others are reloaded through the Loader on demand.
//
// Callers serialise access per subject; distinct subjects may be used concurrently.
type Manager struct {
	policy model.WindowPolicy
	loader Loader
	cache  *lru.Cache[string, []model.Reading]
}

// NewManager creates a manager holding at most cacheSize subject windows in memory.
func NewManager(policy model.WindowPolicy, loader Loader, cacheSize int) (*Manager, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, []model.Reading](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}
	return &Manager{policy: policy, loader: loader, cache: cache}, nil
}

// Policy returns the bound applied to every window.
func (m *Manager) Policy() model.WindowPolicy {
	return m.policy
}

// Snapshot returns a copy of the subject's current window, oldest first.
func (m *Manager) Snapshot(ctx context.Context, subjectID string) ([]model.Reading, error) {
	w, err := m.load(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return clone(w), nil
}

// Push appends a reading to its subject's window, evicts anything outside the
// bound, and returns a copy of the updated window. It does not persist the reading.
func (m *Manager) Push(ctx context.Context, r model.Reading) ([]model.Reading, error) {
	w, err := m.load(ctx, r.SubjectID)
	if err != nil {
		return nil, err
	}
	next := Apply(m.policy, w, r)
	m.cache.Add(r.SubjectID, next)
	return clone(next), nil
}

// Invalidate drops the cached window so the next access reloads it.
func (m *Manager) Invalidate(subjectID string) {
	m.cache.Remove(subjectID)
}

func (m *Manager) load(ctx context.Context, subjectID string) ([]model.Reading, error) {
	if w, ok := m.cache.Get(subjectID); ok {
		return w, nil
	}
	w, err := m.loader.LoadWindow(ctx, subjectID, m.policy)
	if err != nil {
		return nil, fmt.Errorf("load window for %s: %w", subjectID, err)
	}
	w = clone(w)
	sort.SliceStable(w, func(i, j int) bool { return w[i].Timestamp.Before(w[j].Timestamp) })
	w = evict(m.policy, w)
	m.cache.Add(subjectID, w)
	return w, nil
}

// Apply returns a new window with r inserted in timestamp order and the oldest
// readings evicted until the policy holds. Readings with equal timestamps keep
// arrival order. The input slice is not modified.
func Apply(policy model.WindowPolicy, window []model.Reading, r model.Reading) []model.Reading {
	next := make([]model.Reading, 0, len(window)+1)
	next = append(next, window...)
	i := sort.Search(len(next), func(i int) bool { return next[i].Timestamp.After(r.Timestamp) })
	next = append(next, model.Reading{})
	copy(next[i+1:], next[i:])
	next[i] = r.Clone()
	return evict(policy, next)
}

func evict(policy model.WindowPolicy, w []model.Reading) []model.Reading {
	switch policy.Mode {
	case model.WindowByDuration:
		if len(w) == 0 {
			return w
		}
		cutoff := w[len(w)-1].Timestamp.Add(-policy.Span)
		i := sort.Search(len(w), func(i int) bool { return !w[i].Timestamp.Before(cutoff) })
		return w[i:]
	default:
		if len(w) > policy.Size {
			return w[len(w)-policy.Size:]
		}
		return w
	}
}

func clone(w []model.Reading) []model.Reading {
	out := make([]model.Reading, len(w))
	for i, r := range w {
		out[i] = r.Clone()
	}
	return out
}
