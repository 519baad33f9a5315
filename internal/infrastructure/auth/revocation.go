package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList answers whether a token was revoked before it expired.
// The identity service writes entries on logout and password change.
type RevocationList interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// IsUserTokenInvalidated reports whether every token the user held at
	// issuedAt has been revoked
	IsUserTokenInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// RedisRevocationList reads the revocation keys shared with the identity service
type RedisRevocationList struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisRevocationList uses client with the default "token:blacklist:" prefix
func NewRedisRevocationList(client redis.UniversalClient) *RedisRevocationList {
	return &RedisRevocationList{client: client, keyPrefix: "token:blacklist:"}
}

func (r *RedisRevocationList) jtiKey(jti string) string { return r.keyPrefix + "jti:" + jti }

func (r *RedisRevocationList) userKey(userID string) string { return r.keyPrefix + "user:" + userID }

// IsRevoked checks a single token ID
func (r *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// IsUserTokenInvalidated compares issuedAt with the user's invalidation timestamp
func (r *RedisRevocationList) IsUserTokenInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user token invalidation: %w", err)
	}
	invalidatedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("failed to parse invalidation timestamp: %w", err)
	}
	return issuedAt.Unix() <= invalidatedAt, nil
}

// Revoke revokes one token until ttl elapses
func (r *RedisRevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeUser invalidates every token issued to the user up to at
func (r *RedisRevocationList) RevokeUser(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.userKey(userID), at.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user tokens: %w", err)
	}
	return nil
}

// CheckRevoked returns ErrTokenRevoked if the token or all of its user's
// tokens have been revoked. Other errors mean the list could not be read.
func CheckRevoked(ctx context.Context, list RevocationList, claims *Claims) error {
	if claims.ID != "" {
		revoked, err := list.IsRevoked(ctx, claims.ID)
		if err != nil {
			return err
		}
		if revoked {
			return ErrTokenRevoked
		}
	}
	invalidated, err := list.IsUserTokenInvalidated(ctx, claims.UserID, claims.IssuedAtTime())
	if err != nil {
		return err
	}
	if invalidated {
		return ErrTokenRevoked
	}
	return nil
}

var _ RevocationList = (*RedisRevocationList)(nil)
