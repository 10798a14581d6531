package cache

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

const redisScanCount = 512

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// RedisBackend stores one redis string per cache key.
type RedisBackend struct {
	client RedisClient
}

func NewRedisBackend(client RedisClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// DialRedis connects to addr and pings it.
func DialRedis(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis").With("addr", addr)
	}
	return NewRedisBackend(client), nil
}

func (r *RedisBackend) Write(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		var err error
		if e.Delete {
			err = r.client.Del(ctx, e.Key).Err()
		} else {
			err = r.client.Set(ctx, e.Key, e.Value, 0).Err()
		}
		if err != nil {
			return errors.Wrap(err, "redis write").With("key", e.Key)
		}
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(exception.ErrKeyNotFound, "redis get").With("key", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get").With("key", key)
	}
	return v, nil
}

func (r *RedisBackend) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	var (
		keys   []string
		cursor uint64
		match  = escapeGlob(prefix) + "*"
	)
	for {
		page, next, err := r.client.Scan(ctx, cursor, match, redisScanCount).Result()
		if err != nil {
			return errors.Wrap(err, "redis scan").With("prefix", prefix)
		}
		keys = append(keys, page...)
		if next == 0 {
			break
		}
		cursor = next
	}

	// SCAN may return a key more than once.
	slices.Sort(keys)
	keys = slices.Compact(keys)
	for _, key := range keys {
		v, err := r.Get(ctx, key)
		if errors.Is(err, exception.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(key, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
