/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconnect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots as keys that expire with the reconnection
// window, so a stale snapshot disappears on its own.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// OpenRedis connects to a redis:// or rediss:// URL and checks it responds.
func OpenRedis(ctx context.Context, rawURL string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("redis url required")
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStore(rdb, ttl), nil
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStore) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func sessionKey(key string) string { return "fadetoe:session:" + strings.TrimSpace(key) }

func (r *RedisStore) Save(ctx context.Context, key string, snap Snapshot) error {
	data, err := snap.marshal()
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(key), data, r.ttl).Err()
}

func (r *RedisStore) Load(ctx context.Context, key string) (Snapshot, bool, error) {
	data, err := r.rdb.Get(ctx, sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	snap, err := unmarshalSnapshot(data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (r *RedisStore) Clear(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, sessionKey(key)).Err()
}
