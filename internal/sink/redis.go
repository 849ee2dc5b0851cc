package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key receives the latest reading with SET.
	Key string
	// Channel receives every reading with PUBLISH.
	Channel string
}

// Redis mirrors the latest reading into a key and publishes it on a channel.
type Redis struct {
	rdb *redis.Client
	cfg RedisConfig
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Key == "" && cfg.Channel == "" {
		return nil, errors.New("redis sink needs a key or a channel")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Protocol: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return &Redis{rdb: rdb, cfg: cfg}, nil
}

// Name identifies the sink in logs and metrics.
func (r *Redis) Name() string { return "redis" }

// Publish writes the key and publishes on the channel in one round trip.
func (r *Redis) Publish(ctx context.Context, msg Message) error {
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		if r.cfg.Key != "" {
			p.Set(ctx, r.cfg.Key, msg.Payload, 0)
		}
		if r.cfg.Channel != "" {
			p.Publish(ctx, r.cfg.Channel, msg.Payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
