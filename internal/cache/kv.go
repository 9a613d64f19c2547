package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Redis is a JSON value cache with a key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password set
		DB:       0,  // Use default DB
		Protocol: 2,  // Connection protocol
	})

	return NewRedisWithClient(client, "notesync:")
}

func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Set(ctx context.Context, k string, v any, ttl time.Duration) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, r.prefix+k, value, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, k string, v any) error {
	buf, err := r.client.Get(ctx, r.prefix+k).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(buf, v)
}

func (r *Redis) Delete(ctx context.Context, k string) error {
	return r.client.Del(ctx, r.prefix+k).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
