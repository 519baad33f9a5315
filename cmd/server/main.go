package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appaccess "github.com/bizbook/backend/internal/application/access"
	paymentapp "github.com/bizbook/backend/internal/application/payment"
	subscriptionapp "github.com/bizbook/backend/internal/application/subscription"
	"github.com/bizbook/backend/internal/application/sweeper"
	"github.com/bizbook/backend/internal/infrastructure/auth"
	"github.com/bizbook/backend/internal/infrastructure/cache"
	"github.com/bizbook/backend/internal/infrastructure/config"
	"github.com/bizbook/backend/internal/infrastructure/logger"
	"github.com/bizbook/backend/internal/infrastructure/notification"
	"github.com/bizbook/backend/internal/infrastructure/payment/waafipay"
	"github.com/bizbook/backend/internal/infrastructure/persistence"
	"github.com/bizbook/backend/internal/infrastructure/scheduler"
	"github.com/bizbook/backend/internal/infrastructure/storage"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/bizbook/backend/internal/interfaces/http/handler"
	"github.com/bizbook/backend/internal/interfaces/http/middleware"
	"github.com/bizbook/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	webhookRateLimit  = 120
	webhookRateWindow = time.Minute
	shutdownTimeout   = 30 * time.Second
)

//	@title			BizBook Billing API
//	@version		1.0
//	@description	Subscription and payment API of the BizBook platform: mobile wallet charges, bank transfer review and plan entitlements.
//	@contact.name	BizBook Engineering

//	@BasePath	/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token issued by the identity service. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() {
		_ = log.Sync()
	}()

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, baseLog *zap.Logger) error {
	ctx := context.Background()

	// Telemetry providers degrade to no-ops when disabled
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, baseLog)
	if err != nil {
		return fmt.Errorf("tracer provider: %w", err)
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, baseLog)
	if err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, baseLog)
	if err != nil {
		return fmt.Errorf("logger provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = loggerProvider.Shutdown(shutdownCtx)
		_ = meterProvider.Shutdown(shutdownCtx)
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	log := loggerProvider.Bridge(baseLog, zapcore.InfoLevel)
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	profiling := cfg.Telemetry.Profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           profiling.Enabled,
		ServerAddress:     profiling.ServerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     profiling.BasicAuthUser,
		BasicAuthPassword: profiling.BasicAuthPassword,
		ProfileTypes:      profiling.ProfileTypes,
	}, log)
	if err != nil {
		return fmt.Errorf("profiler: %w", err)
	}
	defer func() {
		_ = profiler.Stop()
	}()
	if profiler.IsEnabled() && profiling.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	log.Info("Starting billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormConfig{
		Level:     logger.MapGormLogLevel(cfg.Log.Level),
		SlowQuery: cfg.Telemetry.DBSlowQueryThresh,
	})
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbInstrumentation, err := telemetry.InstrumentDB(db.DB, meter, telemetry.DBConfig{
		Tracing:            cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Warn("Database instrumentation unavailable", zap.Error(err))
	} else {
		defer dbInstrumentation.Stop()
	}
	log.Info("Database connected successfully")

	// Repositories
	plans := persistence.NewGormPlanRepository(db.DB)
	users := persistence.NewGormUserDirectory(db.DB)
	subscriptions := persistence.NewGormSubscriptionRepository(db.DB)
	transactions := persistence.NewGormTransactionStore(db.DB)
	outbox := persistence.NewGormOutboxRepository(db.DB)
	unitOfWork := persistence.NewGormUnitOfWork(db.DB, cfg.Notification.MaxRetries)

	paymentMetrics, err := telemetry.NewPaymentMetrics(telemetry.PaymentMetricsConfig{
		Meter:           meter,
		Logger:          log,
		PendingProvider: transactions,
	})
	if err != nil {
		log.Warn("Payment metrics unavailable", zap.Error(err))
	} else {
		paymentMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsInterval)
		defer paymentMetrics.Stop()
	}

	// Redis backs rate limits and token revocation; both degrade without it
	limiters := cache.NewRateLimiterFactory(cfg.Redis, cache.WithLogger(log))
	offlineLimiter, err := limiters.Create(cfg.Offline.RateLimit, cfg.Offline.RateLimitWindow)
	if err != nil {
		return fmt.Errorf("offline rate limiter: %w", err)
	}
	defer offlineLimiter.Close()
	webhookLimiter, err := limiters.Create(webhookRateLimit, webhookRateWindow)
	if err != nil {
		return fmt.Errorf("webhook rate limiter: %w", err)
	}
	defer webhookLimiter.Close()

	var revocations auth.RevocationList
	if redisClient, err := connectRedis(ctx, cfg.Redis); err != nil {
		log.Warn("Token revocation checks disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		revocations = auth.NewRedisRevocationList(redisClient)
	}

	// Proof storage is optional
	var proofs paymentapp.ProofStorage
	if cfg.Storage.Configured() {
		s3Proofs, err := storage.NewS3ProofStorage(cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Offline.ProofURLTTL))
		if err != nil {
			return fmt.Errorf("proof storage: %w", err)
		}
		proofs = s3Proofs
	} else {
		log.Info("Proof storage not configured, proof uploads disabled")
	}

	// Gateway
	gateway := waafipay.NewAdapter(waafipay.FromAppConfig(cfg.WaafiPay), waafipay.WithLogger(log))
	if !gateway.IsConfigured() {
		log.Warn("WaafiPay credentials missing, mobile wallet payments disabled")
	}

	// Application services
	settler := paymentapp.NewSettler(paymentapp.SettlerConfig{
		UnitOfWork: unitOfWork,
		Payments:   transactions,
		Plans:      plans,
		Metrics:    paymentMetrics,
		Logger:     log,
	})
	gatewayService := paymentapp.NewGatewayPaymentService(paymentapp.GatewayPaymentServiceConfig{
		Gateway:        gateway,
		Payments:       transactions,
		Plans:          plans,
		Settler:        settler,
		Currency:       cfg.WaafiPay.Currency,
		ChargeTimeout:  cfg.WaafiPay.Timeout,
		OfflineEnabled: cfg.Offline.Enabled,
		Metrics:        paymentMetrics,
		Logger:         log,
	})
	offlineService := paymentapp.NewOfflinePaymentService(paymentapp.OfflinePaymentServiceConfig{
		UnitOfWork: unitOfWork,
		Payments:   transactions,
		Plans:      plans,
		Users:      users,
		Settler:    settler,
		Limiter:    offlineLimiter,
		Proofs:     proofs,
		Settings: paymentapp.OfflineSettings{
			Enabled:      cfg.Offline.Enabled,
			Instructions: cfg.Offline.BankInstructions,
			ProofURLTTL:  cfg.Offline.ProofURLTTL,
		},
		Metrics: paymentMetrics,
		Logger:  log,
	})
	ledger := subscriptionapp.NewLedgerService(subscriptionapp.LedgerServiceConfig{
		Subscriptions: subscriptions,
		Plans:         plans,
		TrialLength:   cfg.Subscription.TrialLength,
		Logger:        log,
	})
	gate := appaccess.NewFeatureGate(appaccess.FeatureGateConfig{
		Subscriptions: subscriptions,
		Plans:         plans,
		Logger:        log,
	})

	// Background workers
	if cfg.Notification.RelayEnabled {
		sender, err := notification.NewSender(cfg.Notification, log)
		if err != nil {
			return fmt.Errorf("notification sender: %w", err)
		}
		relay := notification.NewOutboxRelay(outbox, users, sender, notification.RelayConfig{
			BatchSize:        cfg.Notification.BatchSize,
			PollInterval:     cfg.Notification.PollInterval,
			CleanupEnabled:   cfg.Notification.CleanupRetention > 0,
			CleanupRetention: cfg.Notification.CleanupRetention,
		}, log)
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("notification relay: %w", err)
		}
		defer func() {
			if err := relay.Stop(context.Background()); err != nil {
				log.Error("Error stopping notification relay", zap.Error(err))
			}
		}()
	}

	if cfg.Sweeper.Enabled {
		expirySweeper := sweeper.NewExpirySweeper(sweeper.ExpirySweeperConfig{
			UnitOfWork:    unitOfWork,
			Subscriptions: subscriptions,
			Users:         users,
			WarningWindow: cfg.Subscription.WarningWindow,
			BatchSize:     cfg.Sweeper.BatchSize,
			Metrics:       paymentMetrics,
			Logger:        log,
		})
		sweepScheduler := scheduler.NewExpirySweepScheduler(expirySweeper, log, scheduler.ExpirySweepSchedulerConfig{
			Enabled:    true,
			Interval:   cfg.Sweeper.Interval,
			RunAtHour:  cfg.Sweeper.RunAtHour,
			JobTimeout: cfg.Sweeper.JobTimeout,
		})
		if err := sweepScheduler.Start(ctx); err != nil {
			return fmt.Errorf("expiry sweep scheduler: %w", err)
		}
		defer func() {
			if err := sweepScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping expiry sweep scheduler", zap.Error(err))
			}
		}()
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		return fmt.Errorf("validator: %w", err)
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine := router.New(router.Config{
		Logger:      log,
		ServiceName: cfg.Telemetry.ServiceName,
		Tracing:     cfg.Telemetry.Enabled,
		Profiling:   profiler.IsEnabled(),
		Meter:       meter,
		CORS:        cors,
		MaxBodySize: cfg.HTTP.MaxBodySize,
		Docs: middleware.DocsConfig{
			Enabled:     cfg.HTTP.Docs.Enabled,
			RequireAuth: cfg.HTTP.Docs.RequireAuth,
			AllowedIPs:  cfg.HTTP.Docs.AllowedIPs,
		},
		Verifier:       auth.NewVerifier(cfg.JWT),
		Revocations:    revocations,
		WebhookLimiter: webhookLimiter,
		Handlers: router.Handlers{
			System:       handler.NewSystemHandler(db, version, log),
			Payment:      handler.NewPaymentHandler(gatewayService),
			Offline:      handler.NewOfflinePaymentHandler(offlineService),
			Review:       handler.NewOfflineReviewHandler(offlineService),
			Webhook:      handler.NewWebhookHandler(gatewayService, cfg.WaafiPay.WebhookSecret),
			Subscription: handler.NewSubscriptionHandler(ledger, plans),
			Access:       handler.NewAccessHandler(gate),
		},
	})
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited gracefully")
	return nil
}

// connectRedis opens a client and verifies it answers
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
