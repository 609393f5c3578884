package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg, err := notify.NewRegistry(&fakeSender{ch: model.ChannelSMS}, &fakeSender{ch: model.ChannelInApp})
	require.NoError(t, err)

	s, err := reg.Get(model.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelSMS, s.Channel())
	assert.Equal(t, []model.Channel{model.ChannelInApp, model.ChannelSMS}, reg.Channels())
}

func TestRegistry_Duplicate(t *testing.T) {
	_, err := notify.NewRegistry(&fakeSender{ch: model.ChannelEmail}, &fakeSender{ch: model.ChannelEmail})
	assert.Error(t, err)
}

func TestRegistry_Missing(t *testing.T) {
	reg, err := notify.NewRegistry()
	require.NoError(t, err)

	_, err = reg.Get(model.ChannelEmail)
	assert.EqualError(t, err, `no sender configured for channel "email"`)
}
