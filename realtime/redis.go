package realtime

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/elimu/core"
)

// envelope is what travels on the redis channel.
type envelope struct {
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker relays group payloads between processes through a redis channel.
// Every process runs the broker against its own registry, so a publish in one process
// reaches the connections held by all of them.
type RedisBroker struct {
	client  *redis.Client
	channel string
	local   *Registry
	logger  core.Logger
	sub     *redis.PubSub
}

var _ Publisher = (*RedisBroker)(nil)

var errNotSubscribed = errors.New("redis broker not subscribed")

func NewRedisBroker(client *redis.Client, channel string, local *Registry, logger core.Logger) *RedisBroker {
	return &RedisBroker{client: client, channel: channel, local: local, logger: logger}
}

// Publish sends payload through redis. When redis fails, the payload still reaches the
// members held by this process.
func (b *RedisBroker) Publish(ctx context.Context, group string, payload []byte) error {
	data, err := json.Marshal(envelope{Group: group, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "encoding envelope")
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("redis publish failed, delivering locally", errors.Wrap(err, "publishing to redis"),
			map[string]interface{}{"group": group})
		b.local.Deliver(group, payload)
	}
	return nil
}

// Subscribe subscribes to the channel and waits for redis to confirm it.
func (b *RedisBroker) Subscribe(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.Wrap(err, "subscribing to redis")
	}
	b.sub = sub
	return nil
}

// Run delivers the channel's payloads to the local registry until ctx is done.
// Subscribe must have succeeded first.
func (b *RedisBroker) Run(ctx context.Context) error {
	if b.sub == nil {
		return errNotSubscribed
	}
	defer func() { _ = b.sub.Close() }()

	ch := b.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver([]byte(msg.Payload))
		}
	}
}

func (b *RedisBroker) deliver(data []byte) int {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Group == "" {
		b.logger.Warn("dropping malformed broker envelope", map[string]interface{}{"channel": b.channel})
		return 0
	}
	return b.local.Deliver(env.Group, env.Payload)
}
