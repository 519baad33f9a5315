package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bizbook/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RateLimiter decides whether one more event for key fits its window
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	io.Closer
}

// RateLimiterFactory creates rate limiters based on configuration
type RateLimiterFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RateLimiterFactoryOption is a functional option for configuring the factory
type RateLimiterFactoryOption func(*RateLimiterFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RateLimiterFactoryOption {
	return func(f *RateLimiterFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory limiter
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) RateLimiterFactoryOption {
	return func(f *RateLimiterFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRateLimiterFactory creates a new factory
func NewRateLimiterFactory(cfg config.RedisConfig, opts ...RateLimiterFactoryOption) *RateLimiterFactory {
	f := &RateLimiterFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create returns a Redis limiter, or an in-memory one when Redis cannot be
// reached and fallback is allowed
func (f *RateLimiterFactory) Create(limit int, window time.Duration) (RateLimiter, error) {
	limiter, err := NewRedisRateLimiter(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, limit, window)
	if err == nil {
		f.logger.Info("Using Redis rate limiter",
			zap.Int("limit", limit),
			zap.Duration("window", window))
		return limiter, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for rate limiting but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory rate limiter. "+
		"Limits are not shared between instances.",
		zap.Error(err),
	)
	return NewInMemoryRateLimiter(limit, window)
}

var (
	_ RateLimiter = (*RedisRateLimiter)(nil)
	_ RateLimiter = (*InMemoryRateLimiter)(nil)
)
