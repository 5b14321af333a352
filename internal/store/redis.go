package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCounterStore is a CounterStore backed by Redis string keys.
// Each key expires on its own, so finished windows age out without a sweeper.
type RedisCounterStore struct {
	client    goredis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

var _ CounterStore = (*RedisCounterStore)(nil)

// RedisOption configures RedisCounterStore.
type RedisOption func(*RedisCounterStore)

// WithKeyPrefix sets the Redis key prefix (default "antidoom:counter:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisCounterStore) { s.keyPrefix = prefix }
}

// WithCounterTTL sets how long a counter key lives after its first increment
// (default 48h, long enough for both hourly and daily windows).
func WithCounterTTL(ttl time.Duration) RedisOption {
	return func(s *RedisCounterStore) { s.ttl = ttl }
}

// NewRedisCounterStore wraps a connected client.
func NewRedisCounterStore(client goredis.Cmdable, opts ...RedisOption) *RedisCounterStore {
	s := &RedisCounterStore{
		client:    client,
		keyPrefix: "antidoom:counter:",
		ttl:       48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisClient parses url (redis://...) and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisCounterStore) key(k CounterKey) string {
	return s.keyPrefix + k.Subject + ":" + string(k.Kind) + ":" + k.Period
}

// incrementScript adds ARGV[1] to KEYS[1] and sets the expiry on first write.
// KEYS[1] = counter key
// ARGV[1] = delta
// ARGV[2] = ttl (seconds)
var incrementScript = goredis.NewScript(`
local v = redis.call("INCRBYFLOAT", KEYS[1], ARGV[1])
if redis.call("TTL", KEYS[1]) < 0 then
    redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
end
return v
`)

// GetCounter returns the accumulator for key, or 0 if absent.
func (s *RedisCounterStore) GetCounter(ctx context.Context, key CounterKey) (float64, error) {
	v, err := s.client.Get(ctx, s.key(key)).Float64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("redis get counter", err)
	}
	return v, nil
}

// IncrementCounter atomically adds delta to key.
func (s *RedisCounterStore) IncrementCounter(ctx context.Context, key CounterKey, delta float64) (float64, error) {
	raw, err := incrementScript.Run(ctx, s.client,
		[]string{s.key(key)},
		strconv.FormatFloat(delta, 'f', -1, 64), int64(s.ttl.Seconds()),
	).Text()
	if err != nil {
		return 0, storageErr("redis increment counter", err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, storageErr("redis parse counter", err)
	}
	return v, nil
}

// globEscaper quotes SCAN MATCH metacharacters so a subject matches literally.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// subjectPattern matches every key of subject. Keys of other subjects that
// merely start with subject+":" are filtered out by ownsKey.
func (s *RedisCounterStore) subjectPattern(subject string) string {
	return globEscaper.Replace(s.keyPrefix+subject+":") + "*"
}

// ownsKey reports whether key is "<prefix><subject>:<kind>:<period>".
func (s *RedisCounterStore) ownsKey(subject, key string) bool {
	rest, ok := strings.CutPrefix(key, s.keyPrefix+subject+":")
	return ok && strings.Count(rest, ":") == 1
}

// DeleteCounters removes all counters for subject.
func (s *RedisCounterStore) DeleteCounters(ctx context.Context, subject string) (int64, error) {
	var deleted int64
	iter := s.client.Scan(ctx, 0, s.subjectPattern(subject), 100).Iterator()
	for iter.Next(ctx) {
		if !s.ownsKey(subject, iter.Val()) {
			continue
		}
		n, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, storageErr("redis delete counter", err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, storageErr("redis scan counters", err)
	}
	return deleted, nil
}
