package handler

import (
	"net/http"
	"testing"
	"time"

	appaccess "github.com/bizbook/backend/internal/application/access"
	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accessRouter(e *env, mw ...gin.HandlerFunc) *gin.Engine {
	gate := appaccess.NewFeatureGate(appaccess.FeatureGateConfig{
		Subscriptions: e.mem.Subscriptions,
		Plans:         e.mem.Plans,
		Now:           clock,
	})
	h := NewAccessHandler(gate)
	r := newRouter(mw...)
	r.GET("/access/write", h.Write)
	r.GET("/access/features/:feature", h.Feature)
	return r
}

func TestAccessHandler(t *testing.T) {
	e := newEnv(t)
	basic := plan.Plan{
		ID: uuid.New(), Code: "basic", Name: "Basic", Price: decimal.NewFromInt(10), Currency: "USD",
		BillingCycle: plan.BillingCycleMonthly, IsActive: true,
		Features: plan.Features{access.FeatureStock: false},
	}
	e.mem.AddPlan(basic)
	e.plan.Features[access.FeatureStock] = true
	e.mem.AddPlan(e.plan)

	r := accessRouter(e, as(e.owner))
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/access/write", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/access/features/"+access.FeatureStock, nil).Code)

	t.Run("expired trial blocks writes", func(t *testing.T) {
		sub, err := subscription.NewTrial(uuid.New(), basic.ID, testNow.Add(-20*24*time.Hour), 14*24*time.Hour)
		require.NoError(t, err)
		e.mem.PutSubscription(*sub)
		owner := e.owner
		owner.BusinessID = &sub.BusinessID

		w := doJSON(accessRouter(e, as(owner)), http.MethodGet, "/access/write", nil)
		require.Equal(t, http.StatusForbidden, w.Code)
		details := decode(t, w, nil).Error.Details.(map[string]any)
		assert.Equal(t, string(access.ReasonSubscriptionExpired), details["reason"])

		w = doJSON(accessRouter(e, as(owner)), http.MethodGet, "/access/features/"+access.FeatureStock, nil)
		require.Equal(t, http.StatusForbidden, w.Code)
		details = decode(t, w, nil).Error.Details.(map[string]any)
		assert.Equal(t, string(access.ReasonFeatureNotInPlan), details["reason"])
		assert.Equal(t, "Basic", details["current_plan"])
		assert.Equal(t, true, details["upgrade_available"])
	})

	t.Run("individuals", func(t *testing.T) {
		r := accessRouter(e, as(e.individual))
		assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/access/write", nil).Code)
		w := doJSON(r, http.MethodGet, "/access/features/"+access.FeatureStock, nil)
		require.Equal(t, http.StatusForbidden, w.Code)
		details := decode(t, w, nil).Error.Details.(map[string]any)
		assert.Equal(t, string(access.ReasonFeatureNotAvailable), details["reason"])
	})
}
