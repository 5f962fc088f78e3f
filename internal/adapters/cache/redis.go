package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// DefaultTTL bounds how long a cached consensus may be served.
const DefaultTTL = 60 * time.Second

// Redis caches consensus results as JSON strings.
//
// Key schema:
//
//	consensus:{eventID} - JSON encoded model.ConsensusResult
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// RedisConfig holds connection settings for the Redis cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(rdb, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func consensusKey(id model.EventID) string { return "consensus:" + string(id) }

func (r *Redis) Get(ctx context.Context, id model.EventID) (model.ConsensusResult, error) {
	b, err := r.rdb.Get(ctx, consensusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ConsensusResult{}, ErrCacheMiss
	}
	if err != nil {
		return model.ConsensusResult{}, fmt.Errorf("redis: get consensus %s: %w", id, err)
	}
	var out model.ConsensusResult
	if err := json.Unmarshal(b, &out); err != nil {
		return model.ConsensusResult{}, fmt.Errorf("redis: decode consensus %s: %w", id, err)
	}
	return out, nil
}

func (r *Redis) Set(ctx context.Context, res model.ConsensusResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("redis: encode consensus %s: %w", res.EventID, err)
	}
	if err := r.rdb.Set(ctx, consensusKey(res.EventID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set consensus %s: %w", res.EventID, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, id model.EventID) error {
	if err := r.rdb.Del(ctx, consensusKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate consensus %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
