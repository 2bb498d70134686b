package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

// RedisPublisher publishes every event as JSON on a pub/sub channel.
type RedisPublisher struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, log *logger.Logger, addr, channel string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisher(log, rdb, channel), nil
}

func NewRedisPublisher(log *logger.Logger, rdb goredis.UniversalClient, channel string) *RedisPublisher {
	if log == nil {
		log = logger.Nop()
	}
	if channel == "" {
		channel = "lms-events"
	}
	return &RedisPublisher{log: log.With("service", "RedisPublisher"), rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Deliver(ctx context.Context, ev Event) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
