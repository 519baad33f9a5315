package handler

import (
	"net/http"
	"testing"

	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscriptionRouter(e *env, mw ...gin.HandlerFunc) *gin.Engine {
	h := NewSubscriptionHandler(e.ledger, e.mem.Plans)
	r := newRouter(mw...)
	r.GET("/subscription", h.Current)
	r.POST("/subscription/trial", h.StartTrial)
	r.GET("/plans", h.Plans)
	return r
}

func TestSubscriptionHandler_Current(t *testing.T) {
	e := newEnv(t)

	w := doJSON(subscriptionRouter(e, as(e.owner)), http.MethodGet, "/subscription", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got dto.SubscriptionResponse
	decode(t, w, &got)
	assert.Equal(t, string(subscription.StatusTrial), got.Status)
	assert.Equal(t, "Pro", got.Plan)
	assert.Equal(t, 4, got.DaysRemaining)
	require.NotNil(t, got.TrialEndsAt)

	w = doJSON(subscriptionRouter(e, as(e.individual)), http.MethodGet, "/subscription", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.Equal(t, dto.SubscriptionStatusNotApplicable, got.Status)

	businessID := uuid.New()
	newcomer := account.User{ID: uuid.New(), BusinessID: &businessID, Type: account.TypeBusiness}
	w = doJSON(subscriptionRouter(e, as(newcomer)), http.MethodGet, "/subscription", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscriptionHandler_StartTrial(t *testing.T) {
	e := newEnv(t)
	businessID := uuid.New()
	newcomer := account.User{ID: uuid.New(), BusinessID: &businessID, Type: account.TypeBusiness}
	r := subscriptionRouter(e, as(newcomer))

	w := doJSON(r, http.MethodPost, "/subscription/trial", map[string]any{"plan_id": e.plan.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got dto.SubscriptionResponse
	decode(t, w, &got)
	assert.Equal(t, string(subscription.StatusTrial), got.Status)
	assert.Equal(t, 14, got.DaysRemaining)

	w = doJSON(r, http.MethodPost, "/subscription/trial", map[string]any{"plan_id": e.plan.ID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(subscriptionRouter(e, as(e.individual)), http.MethodPost, "/subscription/trial", map[string]any{"plan_id": e.plan.ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubscriptionHandler_Plans(t *testing.T) {
	e := newEnv(t)
	w := doJSON(subscriptionRouter(e), http.MethodGet, "/plans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []dto.PlanResponse
	decode(t, w, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "pro", got[0].Code)
	assert.True(t, got[0].Features["customers"])
}
