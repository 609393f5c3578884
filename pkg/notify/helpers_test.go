package notify_test

import (
	"context"
	"errors"
	"sync"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
)

type sent struct {
	target string
	msg    notify.Message
}

// fakeSender records deliveries and optionally fails or blocks.
type fakeSender struct {
	ch    model.Channel
	err   error
	block bool
	fail  map[string]bool

	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) Channel() model.Channel { return f.ch }

func (f *fakeSender) Send(ctx context.Context, target string, msg notify.Message) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.fail[target] {
		return errors.New("provider rejected " + target)
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{target: target, msg: msg})
	return nil
}

func (f *fakeSender) deliveries() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type memLog struct {
	mu       sync.Mutex
	attempts []model.NotificationAttempt
	err      error
}

func (l *memLog) AppendNotificationAttempt(_ context.Context, a *model.NotificationAttempt) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, *a)
	return nil
}
