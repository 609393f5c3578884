package notify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// Registry holds one sender per channel.
type Registry struct {
	mu      sync.RWMutex
	senders map[model.Channel]Sender
}

// NewRegistry creates an empty sender registry.
func NewRegistry(senders ...Sender) (*Registry, error) {
	r := &Registry{senders: make(map[model.Channel]Sender)}
	for _, s := range senders {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a sender for its channel.
func (r *Registry) Register(s Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := s.Channel()
	if _, exists := r.senders[ch]; exists {
		return fmt.Errorf("sender for channel %q already registered", ch)
	}
	r.senders[ch] = s
	return nil
}

// Get returns the sender for a channel.
func (r *Registry) Get(ch model.Channel) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("no sender configured for channel %q", ch)
	}
	return s, nil
}

// Channels returns the registered channels in sorted order.
func (r *Registry) Channels() []model.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
