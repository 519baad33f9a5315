package middleware

import (
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequirePermission creates middleware that requires a specific permission
// claim on the access token
func RequirePermission(permission string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}
		if !claims.HasPermission(permission) {
			log.Warn("Permission denied",
				zap.String("user_id", claims.UserID),
				zap.String("required", permission),
				zap.String("path", c.Request.URL.Path))
			abortWithDetails(c, dto.ErrCodeForbidden, "You do not have permission to perform this action",
				gin.H{"required_permission": permission})
			return
		}
		c.Next()
	}
}
