package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ErrInvalidLimit is returned when a limiter is built without a positive
// limit or window
var ErrInvalidLimit = errors.New("cache: rate limit and window must be positive")

// slidingWindowScript trims events older than the window, then records the
// new event only if the window still has room. Runs atomically on the server.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] member
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisRateLimiter is a sliding-window limiter backed by a sorted set per
// key. It is shared by every process pointed at the same Redis.
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

// NewRedisRateLimiter connects to Redis and returns a limiter allowing limit
// events per window for each key
func NewRedisRateLimiter(cfg RedisConfig, limit int, window time.Duration) (*RedisRateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRateLimiterWithClient(client, "", limit, window)
}

// NewRedisRateLimiterWithClient creates a limiter on an existing client
func NewRedisRateLimiterWithClient(client redis.UniversalClient, keyPrefix string, limit int, window time.Duration) (*RedisRateLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidLimit
	}
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisRateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}, nil
}

// Allow records one event for key and reports whether it fits in the window.
// A rejected event is not recorded.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.keyPrefix + key},
		now, l.window.Milliseconds(), l.limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}

// Close closes the Redis client
func (l *RedisRateLimiter) Close() error {
	return l.client.Close()
}
