package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentapp "github.com/bizbook/backend/internal/application/payment"
	subscriptionapp "github.com/bizbook/backend/internal/application/subscription"
	"github.com/bizbook/backend/internal/application/uow/uowtest"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/infrastructure/auth"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/bizbook/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

// stubGateway answers every call with the configured result
type stubGateway struct {
	configured bool
	result     *payment.GatewayResult
	err        error
	charges    int
}

func (g *stubGateway) IsConfigured() bool { return g.configured }

func (g *stubGateway) Charge(_ context.Context, req payment.ChargeRequest) (*payment.GatewayResult, error) {
	g.charges++
	if g.err != nil {
		return nil, g.err
	}
	res := *g.result
	res.ReferenceID = req.ReferenceID
	return &res, nil
}

func (g *stubGateway) QueryStatus(_ context.Context, referenceID string) (*payment.GatewayResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	res := *g.result
	res.ReferenceID = referenceID
	return &res, nil
}

// allowN admits n calls per key
type allowN struct {
	n      int
	counts map[string]int
}

func (l *allowN) Allow(_ context.Context, key string) (bool, error) {
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= l.n, nil
}

// stubProofs hands out fixed URLs
type stubProofs struct{}

func (stubProofs) GenerateUploadURL(_ context.Context, key, _ string, ttl time.Duration) (string, time.Time, error) {
	return "https://proofs.example.com/" + key + "?upload", testNow.Add(ttl), nil
}

func (stubProofs) GenerateDownloadURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	return "https://proofs.example.com/" + key, testNow.Add(ttl), nil
}

func (stubProofs) ObjectExists(context.Context, string) (bool, error) { return true, nil }

// env wires the handlers over in-memory stores
type env struct {
	mem        *uowtest.Memory
	gateway    *stubGateway
	plan       plan.Plan
	owner      account.User
	individual account.User
	admin      account.User
	businessID uuid.UUID

	gatewayService *paymentapp.GatewayPaymentService
	offlineService *paymentapp.OfflinePaymentService
	ledger         *subscriptionapp.LedgerService
}

type envOption func(*paymentapp.OfflinePaymentServiceConfig)

func withProofs() envOption {
	return func(c *paymentapp.OfflinePaymentServiceConfig) { c.Proofs = stubProofs{} }
}

func withOfflineDisabled() envOption {
	return func(c *paymentapp.OfflinePaymentServiceConfig) { c.Settings.Enabled = false }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	mem := uowtest.New()
	mem.Now = clock

	p := plan.Plan{
		ID:           uuid.New(),
		Code:         "pro",
		Name:         "Pro",
		Price:        decimal.NewFromInt(25),
		Currency:     "USD",
		BillingCycle: plan.BillingCycleMonthly,
		IsActive:     true,
		Features:     plan.Features{"customers": true},
	}
	mem.AddPlan(p)

	businessID := uuid.New()
	owner := account.User{ID: uuid.New(), BusinessID: &businessID, Type: account.TypeBusiness, Name: "Amina", Email: "amina@example.com", IsActive: true}
	individual := account.User{ID: uuid.New(), Type: account.TypeIndividual, Name: "Farah", IsActive: true}
	admin := account.User{ID: uuid.New(), Type: account.TypeIndividual, Name: "Ops", IsActive: true}
	mem.AddUser(owner)
	mem.AddUser(individual)
	mem.AddUser(admin)

	trial, err := subscription.NewTrial(businessID, p.ID, testNow.Add(-10*24*time.Hour), 14*24*time.Hour)
	require.NoError(t, err)
	mem.PutSubscription(*trial)

	gw := &stubGateway{
		configured: true,
		result:     &payment.GatewayResult{ResponseCode: payment.ResponseCodeSuccess, State: "APPROVED", TransactionID: "41202371"},
	}
	settler := paymentapp.NewSettler(paymentapp.SettlerConfig{UnitOfWork: mem, Payments: mem.Payments, Plans: mem.Plans, Now: clock})

	offlineCfg := paymentapp.OfflinePaymentServiceConfig{
		UnitOfWork: mem,
		Payments:   mem.Payments,
		Plans:      mem.Plans,
		Users:      mem.Users,
		Settler:    settler,
		Limiter:    &allowN{n: 10},
		Settings:   paymentapp.OfflineSettings{Enabled: true, Instructions: "Transfer to account 001-234 at Salaam Bank"},
		Now:        clock,
	}
	for _, opt := range opts {
		opt(&offlineCfg)
	}

	return &env{
		mem:        mem,
		gateway:    gw,
		plan:       p,
		owner:      owner,
		individual: individual,
		admin:      admin,
		businessID: businessID,
		gatewayService: paymentapp.NewGatewayPaymentService(paymentapp.GatewayPaymentServiceConfig{
			Gateway:        gw,
			Payments:       mem.Payments,
			Plans:          mem.Plans,
			Settler:        settler,
			OfflineEnabled: offlineCfg.Settings.Enabled,
			Now:            clock,
		}),
		offlineService: paymentapp.NewOfflinePaymentService(offlineCfg),
		ledger: subscriptionapp.NewLedgerService(subscriptionapp.LedgerServiceConfig{
			Subscriptions: mem.Subscriptions,
			Plans:         mem.Plans,
			Now:           clock,
		}),
	}
}

// as authenticates every request of the router as user
func as(user account.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := &auth.Claims{UserID: user.ID.String(), AccountType: user.Type}
		if user.BusinessID != nil {
			claims.BusinessID = user.BusinessID.String()
		}
		c.Set(middleware.JWTClaimsKey, claims)
		c.Set(middleware.JWTUserIDKey, claims.UserID)
		c.Next()
	}
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(mw...)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and its data into data
func decode(t *testing.T, w *httptest.ResponseRecorder, data any) dto.Response {
	t.Helper()
	var raw struct {
		dto.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.Response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode(t, w, nil)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}
