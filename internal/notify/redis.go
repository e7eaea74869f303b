package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// Publisher abstracts the Redis operation used by RedisPublisher.
// In production this is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes every event as JSON on a Redis channel so that
// indexers running in other processes can follow the ledger.
// Publishing failures are logged, never returned: the mutation has already
// been committed.
type RedisPublisher struct {
	client  Publisher
	channel string
}

// NewRedisPublisher creates a publisher writing to channel.
func NewRedisPublisher(client Publisher, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Notify(ctx context.Context, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event encode failed", "event", ev.ID, "err", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		slog.Error("event publish failed", "event", ev.ID, "channel", p.channel, "err", err)
	}
}
