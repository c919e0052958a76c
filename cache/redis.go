package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syssam/relq"
)

var _ relq.Cache = (*Redis)(nil)

// Redis stores entries in Redis under a key namespace.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	batch   int64
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithPrefix namespaces every key, e.g. "relq:". Clear only removes the
// keys of the namespace when a prefix is set.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTimeout bounds every Redis call. Default is 3 seconds.
func WithTimeout(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRedis returns a cache backed by client.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	c := cache.NewRedis(rdb, cache.WithPrefix("relq:"))
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, timeout: 3 * time.Second, batch: 500}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Get implements relq.Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get %q: %w", key, err)
	}
	return b, nil
}

// Set implements relq.Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set %q: %w", key, err)
	}
	return nil
}

// Delete implements relq.Cache.
func (r *Redis) Delete(ctx context.Context, key string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("cache: redis delete %q: %w", key, err)
	}
	return nil
}

// DeletePrefix implements relq.Cache. Keys are found with SCAN and
// removed in batches.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	iter := r.client.Scan(ctx, 0, escapeGlob(r.key(prefix))+"*", r.batch).Iterator()
	keys := make([]string, 0, r.batch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if int64(len(keys)) == r.batch {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: redis delete prefix %q: %w", prefix, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: redis scan %q: %w", prefix, err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache: redis delete prefix %q: %w", prefix, err)
		}
	}
	return nil
}

// Clear implements relq.Cache. Without a prefix the whole database is
// flushed.
func (r *Redis) Clear(ctx context.Context) error {
	if r.prefix != "" {
		return r.DeletePrefix(ctx, "")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("cache: redis flushdb: %w", err)
	}
	return nil
}

// escapeGlob escapes the pattern characters of a SCAN MATCH argument.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
