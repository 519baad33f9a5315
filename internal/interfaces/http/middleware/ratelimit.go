package middleware

import (
	"context"

	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limiter decides whether one more request is allowed for key
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitByKey returns a rate limiting middleware with a custom key
// extractor. Limiter failures let the request through.
func RateLimitByKey(limiter Limiter, keyFunc func(*gin.Context) string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := keyFunc(c)
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			abortWithError(c, dto.ErrCodeRateLimited, "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}

// RateLimitByIP limits requests per client IP under prefix
func RateLimitByIP(limiter Limiter, prefix string, log *zap.Logger) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string {
		return prefix + c.ClientIP()
	}, log)
}
