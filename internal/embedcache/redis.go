package embedcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/forPelevin/nledit/internal/domain/semantic"
)

// Redis shares embeddings between processes. Vectors are stored as
// little-endian float32 bytes and written with SETNX.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "nledit:emb:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects and pings addr.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *Redis) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) ([]float32, error) {
	rk := c.prefix + key
	b, err := c.client.Get(ctx, rk).Bytes()
	switch {
	case err == nil:
		if v, derr := semantic.DecodeVector(b); derr == nil {
			return v, nil
		}
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("redis get embedding: %w", err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		vec, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.client.SetNX(ctx, rk, semantic.EncodeVector(vec), c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis set embedding: %w", err)
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}
