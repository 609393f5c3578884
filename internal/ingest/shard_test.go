package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// gatedSubmitter holds readings for one subject until release is closed.
type gatedSubmitter struct {
	gated   string
	release chan struct{}

	mu   sync.Mutex
	seen []string
	done chan string
}

func (g *gatedSubmitter) SubmitReading(_ context.Context, subjectID string, metrics map[string]*float64, _ time.Time) (*model.EvaluationResult, error) {
	if subjectID == g.gated {
		<-g.release
	}
	g.mu.Lock()
	g.seen = append(g.seen, fmt.Sprintf("%s:%g", subjectID, *metrics["heart_rate"]))
	g.mu.Unlock()
	g.done <- subjectID
	return &model.EvaluationResult{SubjectID: subjectID, Status: model.StatusNormal}, nil
}

func payload(hr int) []byte {
	return []byte(fmt.Sprintf(`{"metrics":{"heart_rate":%d}}`, hr))
}

func TestConsumer_SlowSubjectDoesNotBlockOthers(t *testing.T) {
	s := &gatedSubmitter{gated: "slow", release: make(chan struct{}), done: make(chan string, 8)}
	c := NewConsumer(Config{Broker: "tcp://localhost:1883", Workers: 4}, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.startWorkers()

	slowTopic := "vitals/slow/readings"
	fast := ""
	for i := 0; fast == ""; i++ {
		topic := fmt.Sprintf("vitals/p%d/readings", i)
		if shardFor(topic, 4) != shardFor(slowTopic, 4) {
			fast = topic
		}
	}

	require.True(t, c.enqueue(slowTopic, payload(80)))
	require.True(t, c.enqueue(fast, payload(70)))

	select {
	case got := <-s.done:
		assert.NotEqual(t, "slow", got)
	case <-time.After(2 * time.Second):
		t.Fatal("reading for another subject waited on the slow one")
	}

	close(s.release)
	select {
	case got := <-s.done:
		assert.Equal(t, "slow", got)
	case <-time.After(2 * time.Second):
		t.Fatal("slow subject never finished")
	}
	c.stopWorkers()
	assert.False(t, c.enqueue(fast, payload(71)))
}

func TestConsumer_KeepsOrderPerSubject(t *testing.T) {
	s := &gatedSubmitter{release: make(chan struct{}), done: make(chan string, 32)}
	c := NewConsumer(Config{Broker: "tcp://localhost:1883"}, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.startWorkers()

	var want []string
	for hr := 60; hr < 80; hr++ {
		require.True(t, c.enqueue("vitals/p1/readings", payload(hr)))
		want = append(want, fmt.Sprintf("p1:%d", hr))
	}
	c.stopWorkers()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, want, s.seen)
}
