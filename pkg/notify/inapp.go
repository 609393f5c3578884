package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// RedisInApp delivers in-app notifications through Redis: each message is
// published on the subject's channel for live clients and kept in a capped
// per-subject inbox list.
type RedisInApp struct {
	client   *redis.Client
	prefix   string
	inboxCap int64
}

// NewRedisInApp creates an in-app sender. Keys are "<prefix>inbox:<subject>"
// and channels "<prefix>live:<subject>".
func NewRedisInApp(client *redis.Client, prefix string, inboxCap int64) *RedisInApp {
	if inboxCap <= 0 {
		inboxCap = 100
	}
	return &RedisInApp{client: client, prefix: prefix, inboxCap: inboxCap}
}

func (r *RedisInApp) Channel() model.Channel { return model.ChannelInApp }

func (r *RedisInApp) Send(ctx context.Context, target string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal in-app message: %w", err)
	}
	inbox := r.InboxKey(target)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, inbox, body)
		p.LTrim(ctx, inbox, 0, r.inboxCap-1)
		p.Publish(ctx, r.LiveChannel(target), body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deliver in-app message: %w", err)
	}
	return nil
}

// Inbox returns up to n of the subject's most recent in-app messages, newest first.
func (r *RedisInApp) Inbox(ctx context.Context, subjectID string, n int64) ([]Message, error) {
	if n <= 0 {
		n = r.inboxCap
	}
	raw, err := r.client.LRange(ctx, r.InboxKey(subjectID), 0, n-1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode inbox message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// InboxKey returns the list key holding a subject's inbox.
func (r *RedisInApp) InboxKey(subjectID string) string {
	return r.prefix + "inbox:" + subjectID
}

// LiveChannel returns the pub/sub channel for a subject.
func (r *RedisInApp) LiveChannel(subjectID string) string {
	return r.prefix + "live:" + subjectID
}
