// Package payment implements the two payment channels: mobile-wallet charges
// confirmed by gateway webhooks, and offline bank transfers reviewed by an
// admin. Both settle through the Settler.
package payment

import (
	"context"
	"time"
)

// RateLimiter decides whether one more event is allowed for key within the
// limiter's sliding window
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ProofStorage hands out presigned URLs for proof-of-payment files
type ProofStorage interface {
	GenerateUploadURL(ctx context.Context, storageKey, contentType string, expiresIn time.Duration) (string, time.Time, error)
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
	ObjectExists(ctx context.Context, storageKey string) (bool, error)
}
