package middleware

import (
	appaccess "github.com/bizbook/backend/internal/application/access"
	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessDecisionKey holds the allowing decision for downstream handlers
const AccessDecisionKey = "access_decision"

// Authorize evaluates policies left to right for the authenticated caller.
// A denial answers 403 with the reason code; a policy that cannot decide
// answers 500. Must run after JWTAuth.
func Authorize(log *zap.Logger, policies ...appaccess.Policy) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		subject, ok := SubjectFromContext(c)
		if !ok {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		decision, err := appaccess.Evaluate(c.Request.Context(), subject, policies...)
		if err != nil {
			log.Error("Access policy evaluation failed",
				zap.String("user_id", subject.UserID.String()),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			abortWithError(c, dto.ErrCodeInternal, "Could not verify access, please try again")
			return
		}
		if !decision.Allowed {
			log.Info("Access denied",
				zap.String("user_id", subject.UserID.String()),
				zap.String("reason", string(decision.Reason)),
				zap.String("feature", decision.Feature))
			AbortDenied(c, decision)
			return
		}

		c.Set(AccessDecisionKey, decision)
		c.Next()
	}
}

// RequireWrite allows the request while the caller may make changes. Payment
// routes stay open to lapsed accounts, so nothing in this service mounts it;
// it is the write gate for the bookkeeping routers that embed this package.
func RequireWrite(gate *appaccess.FeatureGate, log *zap.Logger) gin.HandlerFunc {
	return Authorize(log, gate.Write())
}

// RequireFeature allows the request when the named feature is available.
// Mounted by the feature routers (customers, vendors, ...) that embed this
// package; this service answers the same question on /access/features.
func RequireFeature(gate *appaccess.FeatureGate, feature string, log *zap.Logger) gin.HandlerFunc {
	return Authorize(log, gate.Feature(feature))
}

// RequireUserType allows only callers of the given account type
func RequireUserType(t account.Type, log *zap.Logger) gin.HandlerFunc {
	return Authorize(log, appaccess.RequireUserType(t))
}

// AbortDenied writes a 403 carrying the decision's reason and upgrade hint
func AbortDenied(c *gin.Context, d access.Decision) {
	abortWithDetails(c, dto.ErrCodeForbidden, d.Reason.Message(), dto.ForbiddenDetail{
		Reason:           string(d.Reason),
		Feature:          d.Feature,
		CurrentPlan:      d.CurrentPlan,
		UpgradeAvailable: d.UpgradeAvailable,
	})
}
