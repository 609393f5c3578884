package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// BreakerConfig tunes the per-channel circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// breakerSender fails fast while a channel's provider keeps failing, so a dead
// gateway does not hold every dispatch for the full attempt timeout.
type breakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps a sender in a circuit breaker named after its channel.
func WithBreaker(next Sender, cfg BreakerConfig) Sender {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-" + string(next.Channel()),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
	})
	return &breakerSender{next: next, cb: cb}
}

func (b *breakerSender) Channel() model.Channel { return b.next.Channel() }

func (b *breakerSender) Send(ctx context.Context, target string, msg Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, target, msg)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", b.cb.Name(), err)
	}
	return nil
}
