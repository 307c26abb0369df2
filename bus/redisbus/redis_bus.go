// Package redisbus bridges the session event channel over Redis
// pub/sub, so a logout performed by one process is observed by sibling
// processes sharing the same persisted store.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go.pilab.hu/authflow/bus"
	"go.pilab.hu/authflow/domain"
	"go.pilab.hu/authflow/log"
)

type envelope struct {
	Origin string             `json:"origin"`
	User   *domain.UserRecord `json:"user,omitempty"`
}

// RedisBus implements bus.Bus. Local subscribers are notified directly;
// the same notification is published on a Redis channel and deliveries
// arriving from other processes are re-dispatched locally. Messages
// carry an origin id so a process never re-delivers its own.
type RedisBus struct {
	client  *redis.Client
	channel string
	origin  string
	local   *bus.MemoryBus
	logger  log.Logger
	cancel  context.CancelFunc
}

// NewRedisBus starts a bus bridged over the named Redis channel. Close
// stops the background listener.
func NewRedisBus(client *redis.Client, channel string, logger log.Logger) *RedisBus {
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   bus.NewMemoryBus(),
		logger:  logger,
		cancel:  cancel,
	}
	go b.listen(ctx)
	return b
}

// Subscribe implements bus.Bus.Subscribe.
func (b *RedisBus) Subscribe(h bus.Handler) func() {
	return b.local.Subscribe(h)
}

// Publish implements bus.Bus.Publish: local subscribers first, then the
// Redis channel for everyone else.
func (b *RedisBus) Publish(ctx context.Context, user *domain.UserRecord) {
	b.local.Publish(ctx, user)

	raw, err := json.Marshal(envelope{Origin: b.origin, User: user})
	if err != nil {
		b.logger.Error(ctx, "failed to encode session event", err)
		return
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.logger.Error(ctx, "failed to publish session event to redis", err,
			map[string]interface{}{"channel": b.channel})
	}
}

func (b *RedisBus) listen(ctx context.Context) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn(ctx, "dropping malformed session event",
					map[string]interface{}{"payload": msg.Payload})
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.local.Publish(ctx, env.User)
		}
	}
}

// Close stops the Redis listener. Local subscriptions stay usable.
func (b *RedisBus) Close() error {
	b.cancel()
	return nil
}

var _ bus.Bus = (*RedisBus)(nil)

// ChannelFor derives a conventional channel name for a given store
// prefix, e.g. "authflow:<prefix>:session-events".
func ChannelFor(prefix string) string {
	return fmt.Sprintf("authflow:%s:session-events", prefix)
}
