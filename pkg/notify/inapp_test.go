package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisInApp_SendStoresAndPublishes(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	s := notify.NewRedisInApp(client, "vw:", 10)
	assert.Equal(t, model.ChannelInApp, s.Channel())

	sub := client.Subscribe(ctx, s.LiveChannel("s1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	msg := notify.Message{SubjectID: "s1", Severity: model.SeverityWarning, Title: notify.TitleTrend, Body: "heart rate is decreasing"}
	require.NoError(t, s.Send(ctx, "s1", msg))

	select {
	case m := <-sub.Channel():
		assert.Contains(t, m.Payload, "heart rate is decreasing")
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	inbox, err := s.Inbox(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, notify.TitleTrend, inbox[0].Title)
	assert.Equal(t, model.SeverityWarning, inbox[0].Severity)
}

func TestRedisInApp_InboxIsCappedNewestFirst(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	s := notify.NewRedisInApp(client, "vw:", 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Send(ctx, "s1", notify.Message{Body: fmt.Sprintf("msg-%d", i)}))
	}

	items, err := mr.List(s.InboxKey("s1"))
	require.NoError(t, err)
	assert.Len(t, items, 3)

	inbox, err := s.Inbox(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, "msg-4", inbox[0].Body)
	assert.Equal(t, "msg-3", inbox[1].Body)
}

func TestRedisInApp_EmptyInbox(t *testing.T) {
	_, client := newRedis(t)
	s := notify.NewRedisInApp(client, "vw:", 0)

	inbox, err := s.Inbox(context.Background(), "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestRedisInApp_ServerDown(t *testing.T) {
	mr, client := newRedis(t)
	s := notify.NewRedisInApp(client, "vw:", 10)
	mr.Close()

	err := s.Send(context.Background(), "s1", notify.Message{Body: "x"})
	assert.Error(t, err)
}
