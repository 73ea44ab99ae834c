// Command server runs the ledger API: tenant-scoped money movement with a
// transactional webhook outbox and at-least-once delivery worker.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/dodopay/ledger/internal/account"
	"github.com/dodopay/ledger/internal/config"
	"github.com/dodopay/ledger/internal/delayscheduler"
	"github.com/dodopay/ledger/internal/delivery"
	"github.com/dodopay/ledger/internal/health"
	"github.com/dodopay/ledger/internal/httpapi"
	"github.com/dodopay/ledger/internal/keystore"
	"github.com/dodopay/ledger/internal/ledger"
	"github.com/dodopay/ledger/internal/logging"
	"github.com/dodopay/ledger/internal/outbox"
	"github.com/dodopay/ledger/internal/ratelimit"
	"github.com/dodopay/ledger/internal/recovery"
	"github.com/dodopay/ledger/internal/retry"
	"github.com/dodopay/ledger/internal/tenant"
	"github.com/dodopay/ledger/internal/tracing"
	"github.com/dodopay/ledger/internal/webhookendpoint"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// deliveryQueueSize bounds the in-process channel feeding internal/delivery.
// It's a buffer against bursts, not a durability mechanism: a notify that
// doesn't fit is dropped, and its event stays pending in Postgres until
// internal/recovery re-enqueues it at the next startup.
const deliveryQueueSize = 256

func main() {
	logger := logging.New("info", "text")
	logger.Info("starting dodopay ledger", "version", Version, "commit", Commit, "build_time", BuildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := connectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	tenants := tenant.NewPostgresStore(db)
	accounts := account.NewPostgresStore(db)
	keys := keystore.NewPostgresStore(db)
	adminKeys := keystore.NewAdminPostgresStore(db)
	endpoints := webhookendpoint.NewPostgresStore(db)
	events := outbox.NewPostgresStore(db)

	keyManager := keystore.NewManager(keys, cfg.APIKeySecret, tenants)
	adminKeyManager := keystore.NewAdminManager(adminKeys, cfg.APIKeySecret)
	limiter := ratelimit.New(cfg.RedisURL, logger)

	deliveryCh := make(chan delivery.Message, deliveryQueueSize)
	notify := func(eventID string) {
		if eventID == "" {
			return
		}
		select {
		case deliveryCh <- delivery.Message{EventID: eventID}:
		default:
			logger.Warn("delivery queue full, dropping notify (recovery will catch it)", "event_id", eventID)
		}
	}

	engine := ledger.New(db, endpoints, events, notify)

	scheduler := delayscheduler.New(cfg.RedisURL, logger)
	go scheduler.Watch(ctx, func(eventID string) {
		notify(eventID)
	})

	worker := delivery.NewWorker(events, endpoints, scheduler, logger)
	go worker.Run(ctx, deliveryCh)

	if err := recovery.Run(ctx, events, deliveryCh, logger); err != nil {
		logger.Error("boot-time recovery scan failed", "error", err)
	}

	registry := health.NewRegistry()
	registry.Register("postgres", func(ctx context.Context) health.Status {
		if err := db.PingContext(ctx); err != nil {
			return health.Status{Name: "postgres", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "postgres", Healthy: true}
	})

	srv := &httpapi.Server{
		Ledger:      engine,
		Accounts:    accounts,
		Tenants:     tenants,
		Keys:        keyManager,
		AdminKeys:   adminKeyManager,
		Endpoints:   endpoints,
		RateLimiter: limiter,
	}
	router := srv.Router()
	router.GET("/health", func(c *gin.Context) {
		healthy, statuses := registry.CheckAll(c.Request.Context())
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"healthy": healthy, "checks": statuses})
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

// connectPostgres opens the pool and retries the initial ping with backoff —
// useful when the database container is still starting up alongside the
// server in a fresh environment.
func connectPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	err = retry.Do(ctx, 5, 500*time.Millisecond, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
