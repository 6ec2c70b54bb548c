// Package notify
package notify

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
)

const keyRecentEvents = "#notify#recent"

// RedisBuffer mirrors the recent-events buffer into a shared redis list so
// operators can inspect notifications across several toolkit processes.
type RedisBuffer struct {
	client *redis.Client
	cap    int64

	logger *zap.Logger
}

type RedisConfig struct {
	URL       string
	DB        int
	QueueSize int

	Logger *zap.Logger
}

func NewRedisBuffer(cfg RedisConfig) (*RedisBuffer, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.URL,
		DB:   cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	size := int64(cfg.QueueSize)
	if size <= 0 {
		size = 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBuffer{client: client, cap: size, logger: logger}, nil
}

func (b *RedisBuffer) Push(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, keyRecentEvents, string(data)).Err(); err != nil {
		return err
	}
	// Trim keeps the list bounded; oldest entries fall off the tail.
	return b.client.LTrim(ctx, keyRecentEvents, 0, b.cap-1).Err()
}

func (b *RedisBuffer) Recent(ctx context.Context, n int) ([]types.Event, error) {
	raw, err := b.client.LRange(ctx, keyRecentEvents, 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Event, 0, len(raw))
	for _, item := range raw {
		var event types.Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			b.logger.Warn("cannot decode buffered event", zap.Error(err))
			continue
		}
		out = append(out, event)
	}
	return out, nil
}
