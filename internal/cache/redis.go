package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirrorConfig holds connection settings for the Redis-backed mirror.
type RedisMirrorConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisMirror implements Mirror on top of Redis. Payloads are stored as-is;
// the store already serialized them. TTLs map directly onto Redis key
// expiry so the mirror ages out on its own.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// NewRedisMirror connects to Redis and verifies the connection.
func NewRedisMirror(ctx context.Context, cfg *RedisMirrorConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "governor:"
	}
	return &RedisMirror{client: client, prefix: prefix}, nil
}

// Store writes a payload with the given TTL. A zero TTL persists the key
// until it is deleted or evicted by Redis itself.
func (m *RedisMirror) Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return m.client.Set(ctx, m.prefix+key, payload, ttl).Err()
}

// Delete removes a mirrored key.
func (m *RedisMirror) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, m.prefix+key).Err()
}

// Close releases the underlying connection pool.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
