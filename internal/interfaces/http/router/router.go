// Package router assembles the gin engine of the billing API.
package router

import (
	"net/http"

	_ "github.com/bizbook/backend/docs"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/infrastructure/auth"
	"github.com/bizbook/backend/internal/infrastructure/logger"
	"github.com/bizbook/backend/internal/interfaces/http/handler"
	"github.com/bizbook/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PermissionApprovePayments guards the offline review console
const PermissionApprovePayments = "payments:approve"

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion mounts every group under /api/<version>
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance. Without WithAPIVersion routes are
// mounted at the root.
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	base := "/"
	if r.apiVersion != "" {
		base = "/api/" + r.apiVersion
	}
	api := r.engine.Group(base)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup is a prefixed set of routes sharing middleware
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// Group creates a sub-group within this domain
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar interface
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Handlers are the endpoint handlers mounted by New
type Handlers struct {
	System       *handler.SystemHandler
	Payment      *handler.PaymentHandler
	Offline      *handler.OfflinePaymentHandler
	Review       *handler.OfflineReviewHandler
	Webhook      *handler.WebhookHandler
	Subscription *handler.SubscriptionHandler
	Access       *handler.AccessHandler
}

// Config holds everything New needs to build the engine
type Config struct {
	Logger      *zap.Logger
	ServiceName string
	Tracing     bool
	// Profiling labels CPU samples with the matched route
	Profiling   bool
	Meter       metric.Meter
	CORS        middleware.CORSConfig
	MaxBodySize int64
	APIVersion  string
	Docs        middleware.DocsConfig

	Verifier    *auth.Verifier
	Revocations auth.RevocationList
	// WebhookLimiter throttles the public webhook per client IP; nil disables it
	WebhookLimiter middleware.Limiter

	Handlers Handlers
}

// New builds the engine with the global middleware chain and every route
func New(cfg Config) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(cfg.ServiceName, cfg.Tracing),
		middleware.SpanEnricher(),
		middleware.Profiling(cfg.Profiling),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	authenticated := middleware.JWTAuth(middleware.JWTMiddlewareConfig{
		Verifier:    cfg.Verifier,
		Revocations: cfg.Revocations,
		Logger:      log,
	})

	h := cfg.Handlers
	engine.GET("/health", h.System.Health)
	engine.GET("/ready", h.System.Ready)
	engine.GET("/swagger/*any", middleware.DocsProtection(cfg.Docs, authenticated), ginSwagger.WrapHandler(swaggerFiles.Handler))

	var opts []RouterOption
	if cfg.APIVersion != "" {
		opts = append(opts, WithAPIVersion(cfg.APIVersion))
	}
	r := NewRouter(engine, opts...)

	webhook := NewDomainGroup("webhook", "/waafipay").Use(middleware.BodyLimit(middleware.MaxWebhookBody))
	if cfg.WebhookLimiter != nil {
		webhook.Use(middleware.RateLimitByIP(cfg.WebhookLimiter, "webhook:", log))
	}
	webhook.POST("/webhook", h.Webhook.Handle)
	r.Register(webhook)

	payments := NewDomainGroup("payments", "/payment").Use(authenticated)
	payments.GET("/methods", h.Payment.Methods)
	payments.POST("/initiate", h.Payment.Initiate)
	payments.POST("/status", h.Payment.Status)
	payments.GET("/offline/instructions", h.Offline.Instructions)
	payments.POST("/offline", middleware.RequireUserType(account.TypeBusiness, log), h.Offline.Initiate)
	payments.POST("/offline/status", h.Offline.Status)
	payments.POST("/offline/proof-upload", middleware.RequireUserType(account.TypeBusiness, log), h.Offline.ProofUpload)
	r.Register(payments)

	subscription := NewDomainGroup("subscription", "/subscription").Use(authenticated)
	subscription.GET("", h.Subscription.Current)
	subscription.POST("/trial", h.Subscription.StartTrial)
	r.Register(subscription)

	plans := NewDomainGroup("plans", "/plans").Use(authenticated)
	plans.GET("", h.Subscription.Plans)
	r.Register(plans)

	accessGroup := NewDomainGroup("access", "/access").Use(authenticated)
	accessGroup.GET("/write", h.Access.Write)
	accessGroup.GET("/features/:feature", h.Access.Feature)
	r.Register(accessGroup)

	admin := NewDomainGroup("admin", "/admin").Use(authenticated, middleware.RequirePermission(PermissionApprovePayments, log))
	review := admin.Group("offline-payments", "/payments/offline")
	review.GET("", h.Review.List)
	review.POST("/:reference_id/approve", h.Review.Approve)
	review.POST("/:reference_id/reject", h.Review.Reject)
	review.GET("/:reference_id/proof", h.Review.Proof)
	r.Register(admin)

	r.Setup()
	return engine
}
