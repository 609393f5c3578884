package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
)

func TestWithBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	inner := &fakeSender{ch: model.ChannelSMS, err: errors.New("gateway down")}
	s := notify.WithBreaker(inner, notify.BreakerConfig{MinRequests: 3, FailureRatio: 0.5, Timeout: time.Minute})
	assert.Equal(t, model.ChannelSMS, s.Channel())

	for i := 0; i < 3; i++ {
		err := s.Send(context.Background(), "+1555", notify.Message{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gateway down")
	}

	err := s.Send(context.Background(), "+1555", notify.Message{})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestWithBreaker_PassesThroughSuccess(t *testing.T) {
	inner := &fakeSender{ch: model.ChannelEmail}
	s := notify.WithBreaker(inner, notify.BreakerConfig{})

	require.NoError(t, s.Send(context.Background(), "a@example.com", notify.Message{Title: "t"}))
	require.Len(t, inner.deliveries(), 1)
	assert.Equal(t, "a@example.com", inner.deliveries()[0].target)
}
