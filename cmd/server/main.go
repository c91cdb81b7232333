package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tabletap/api/internal/config"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/logger"
	"github.com/tabletap/api/internal/payment"
	"github.com/tabletap/api/internal/router"
	"github.com/tabletap/api/internal/service"
	"github.com/tabletap/api/internal/ws"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	log.Info("starting tabletap api",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		log.Info("migrations applied")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		log.Fatal("invalid database url", zap.Error(err))
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("unable to ping database", zap.Error(err))
	}
	log.Info("connected to database", zap.Int32("max_conns", poolCfg.MaxConns))

	ledger, closeLedger := newLedger(ctx, cfg, log)
	defer closeLedger()

	var gateway payment.Gateway
	switch cfg.Payment.Provider {
	case config.ProviderHTTP:
		gateway = payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout)
	default:
		gateway = payment.NewManualGateway()
	}
	log.Info("payment gateway ready", zap.String("provider", gateway.Name()))

	hub := ws.NewHub(log.Named("ws"))
	go hub.Run(ctx)

	queries := database.New(pool)
	orders := service.NewOrderService(
		pool,
		queries,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		gateway,
		ledger,
		hub,
		log.Named("orders"),
		service.Options{
			MaxConflictRetries: cfg.Order.MaxConflictRetries,
			HistoryLimit:       cfg.Order.HistoryLimit,
		},
	)

	r := router.New(cfg, queries, pool, orders, hub, log)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited gracefully")
}

// newLedger returns the shared Redis ledger when Redis is enabled and the
// in-process one otherwise.
func newLedger(ctx context.Context, cfg *config.Config, log *zap.Logger) (payment.Ledger, func()) {
	if !cfg.Redis.Enabled {
		log.Info("payment ledger: in-memory")
		return payment.NewMemoryLedger(cfg.Payment.IdempotencyTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("unable to reach redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	log.Info("payment ledger: redis", zap.String("addr", cfg.Redis.Addr))
	return payment.NewRedisLedger(client, cfg.Payment.IdempotencyTTL), func() {
		if err := client.Close(); err != nil {
			log.Warn("closing redis client", zap.Error(err))
		}
	}
}
