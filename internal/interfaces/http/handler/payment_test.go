package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentRouter(e *env, mw ...gin.HandlerFunc) *gin.Engine {
	h := NewPaymentHandler(e.gatewayService)
	r := newRouter(mw...)
	r.GET("/payment/methods", h.Methods)
	r.POST("/payment/initiate", h.Initiate)
	r.POST("/payment/status", h.Status)
	return r
}

func TestPaymentHandler_Methods(t *testing.T) {
	e := newEnv(t)
	w := doJSON(paymentRouter(e), http.MethodGet, "/payment/methods", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got dto.PaymentMethodsResponse
	decode(t, w, &got)
	require.Len(t, got.Methods, 2)
	assert.Equal(t, "waafipay", got.Methods[0].Code)
	assert.Equal(t, "offline", got.Methods[1].Code)

	t.Run("nothing configured", func(t *testing.T) {
		e := newEnv(t, withOfflineDisabled())
		e.gateway.configured = false
		w := doJSON(paymentRouter(e), http.MethodGet, "/payment/methods", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, dto.ErrCodeNotConfigured, errorCode(t, w))
	})
}

func TestPaymentHandler_Initiate(t *testing.T) {
	t.Run("approved charge activates the plan", func(t *testing.T) {
		e := newEnv(t)
		w := doJSON(paymentRouter(e, as(e.owner)), http.MethodPost, "/payment/initiate", map[string]any{
			"phone_number": "615414470",
			"plan_id":      e.plan.ID.String(),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got dto.InitiatePaymentResponse
		decode(t, w, &got)
		assert.NotEmpty(t, got.ReferenceID)
		assert.Equal(t, string(payment.StatusSuccess), got.Status)
		assert.True(t, e.plan.Price.Equal(got.Amount))

		sub, err := e.mem.Subscriptions.FindByBusinessID(context.Background(), e.businessID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("declined charge is a 400 carrying the reference", func(t *testing.T) {
		e := newEnv(t)
		e.gateway.result = &payment.GatewayResult{ResponseCode: payment.ResponseCodePayerRejected, ResponseMsg: "RCS_USER_REJECTED"}
		w := doJSON(paymentRouter(e, as(e.owner)), http.MethodPost, "/payment/initiate", map[string]any{
			"phone_number": "615414470",
			"amount":       "5.00",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w, nil)
		assert.Equal(t, dto.ErrCodeGateway, resp.Error.Code)
		details, ok := resp.Error.Details.(map[string]any)
		require.True(t, ok)
		assert.NotEmpty(t, details["reference_id"])
		assert.Equal(t, string(payment.StatusFailed), details["status"])
	})

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing phone", map[string]any{"amount": "5"}, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"unknown wallet", map[string]any{"phone_number": "615414470", "amount": "5", "wallet_type": "paypal"}, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"phone of another carrier", map[string]any{"phone_number": "635414470", "amount": "5"}, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"zero amount without plan", map[string]any{"phone_number": "615414470"}, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"malformed json", `{"phone_number":`, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			w := doJSON(paymentRouter(e, as(e.owner)), http.MethodPost, "/payment/initiate", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, errorCode(t, w))
			assert.Zero(t, e.gateway.charges)
		})
	}

	t.Run("gateway not configured", func(t *testing.T) {
		e := newEnv(t)
		e.gateway.configured = false
		w := doJSON(paymentRouter(e, as(e.owner)), http.MethodPost, "/payment/initiate", map[string]any{
			"phone_number": "615414470", "amount": "5",
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, dto.ErrCodeNotConfigured, errorCode(t, w))
	})

	t.Run("unauthenticated", func(t *testing.T) {
		e := newEnv(t)
		w := doJSON(paymentRouter(e), http.MethodPost, "/payment/initiate", map[string]any{"phone_number": "615414470"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPaymentHandler_Status(t *testing.T) {
	e := newEnv(t)
	w := doJSON(paymentRouter(e, as(e.owner)), http.MethodPost, "/payment/initiate", map[string]any{
		"phone_number": "615414470", "amount": "5",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var started dto.InitiatePaymentResponse
	decode(t, w, &started)

	w = doJSON(paymentRouter(e, as(e.owner)), http.MethodPost, "/payment/status", map[string]any{"reference_id": started.ReferenceID})
	require.Equal(t, http.StatusOK, w.Code)
	var got dto.PaymentStatusResponse
	decode(t, w, &got)
	assert.Equal(t, started.ReferenceID, got.ReferenceID)
	assert.Equal(t, string(payment.StatusSuccess), got.Status)

	w = doJSON(paymentRouter(e, as(e.individual)), http.MethodPost, "/payment/status", map[string]any{"reference_id": started.ReferenceID})
	assert.Equal(t, http.StatusNotFound, w.Code, "other users cannot see the transaction")

	w = doJSON(paymentRouter(e, as(e.owner)), http.MethodPost, "/payment/status", map[string]any{"reference_id": "WP-NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
