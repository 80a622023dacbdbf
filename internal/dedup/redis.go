package dedup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSet is a Set backed by Redis, for sharing seen-URL state across
// processes or runs. Keys are SHA-1 hashes of the normalized URL so the
// keyspace stays bounded regardless of URL length.
type RedisSet struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Set = (*RedisSet)(nil)

// RedisConfig configures a RedisSet.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the keys; defaults to "seen:".
	Prefix string
	// TTL bounds how long a URL stays deduplicated. Zero means forever.
	TTL time.Duration
}

// NewRedisSet connects to Redis and verifies the connection.
func NewRedisSet(ctx context.Context, cfg RedisConfig) (*RedisSet, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "seen:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisSet{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (r *RedisSet) key(normalizedURL string) string {
	sum := sha1.Sum([]byte(normalizedURL))
	return r.prefix + hex.EncodeToString(sum[:])
}

// Visit records the URL with SET NX, which makes first-visit detection a
// single atomic round trip.
func (r *RedisSet) Visit(ctx context.Context, normalizedURL string) (bool, error) {
	first, err := r.client.SetNX(ctx, r.key(normalizedURL), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return first, nil
}

func (r *RedisSet) Close() error {
	return r.client.Close()
}
