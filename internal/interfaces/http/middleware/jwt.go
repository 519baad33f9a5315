package middleware

import (
	"errors"
	"strings"

	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/infrastructure/auth"
	"github.com/bizbook/backend/internal/infrastructure/logger"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey     = "jwt_claims"
	JWTUserIDKey     = "jwt_user_id"
	JWTBusinessIDKey = "jwt_business_id"
	AuthHeaderKey    = "Authorization"
	BearerPrefix     = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// Verifier is required for token validation
	Verifier *auth.Verifier
	// Revocations is optional; lookups that fail let the request through
	Revocations auth.RevocationList
	Logger      *zap.Logger
}

// JWTAuth creates JWT authentication middleware
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, BearerPrefix)
		if !ok || strings.TrimSpace(tokenString) == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := cfg.Verifier.Verify(strings.TrimSpace(tokenString))
		if err != nil {
			log.Warn("JWT authentication failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
			handleAuthError(c, err)
			return
		}

		if cfg.Revocations != nil {
			if err := auth.CheckRevoked(c.Request.Context(), cfg.Revocations, claims); err != nil {
				if errors.Is(err, auth.ErrTokenRevoked) {
					handleAuthError(c, err)
					return
				}
				log.Error("Failed to check token revocation", zap.String("user_id", claims.UserID), zap.Error(err))
			}
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTBusinessIDKey, claims.BusinessID)

		ctx := c.Request.Context()
		reqLogger := logger.FromContext(ctx)
		ctx, reqLogger = logger.WithUserID(ctx, reqLogger, claims.UserID)
		if claims.BusinessID != "" {
			ctx, _ = logger.WithBusinessID(ctx, reqLogger, claims.BusinessID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		abortWithError(c, dto.ErrCodeTokenExpired, "Token has expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		abortWithError(c, dto.ErrCodeTokenRevoked, "Token has been revoked")
	case errors.Is(err, auth.ErrTokenNotYetValid):
		abortWithError(c, dto.ErrCodeTokenInvalid, "Token is not yet valid")
	case errors.Is(err, auth.ErrInvalidTokenType):
		abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token type")
	default:
		abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token")
	}
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTUserID retrieves the user ID from JWT claims in context
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

// GetJWTBusinessID retrieves the business ID from JWT claims in context
func GetJWTBusinessID(c *gin.Context) string {
	return c.GetString(JWTBusinessIDKey)
}

// SubjectFromContext builds the authorization subject of the caller.
// Claims were validated by JWTAuth so the IDs parse.
func SubjectFromContext(c *gin.Context) (access.Subject, bool) {
	claims := GetJWTClaims(c)
	if claims == nil {
		return access.Subject{}, false
	}
	userID, err := claims.UserUUID()
	if err != nil {
		return access.Subject{}, false
	}
	businessID, err := claims.BusinessUUID()
	if err != nil {
		return access.Subject{}, false
	}
	typ := claims.AccountType
	if !typ.IsValid() {
		typ = account.TypeIndividual
	}
	return access.Subject{UserID: userID, BusinessID: businessID, Type: typ}, true
}

// UserUUID returns the caller's user ID
func UserUUID(c *gin.Context) (uuid.UUID, bool) {
	s, ok := SubjectFromContext(c)
	return s.UserID, ok
}
