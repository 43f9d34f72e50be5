package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/api"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/config"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/db"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/lock"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/metrics"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/observ"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/provider"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/ratelimiter"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/service"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	subs := repository.NewPgSubscriptionRepository(pool)
	queue := repository.NewPgQueueRepository(pool)
	products := repository.NewPgProductRepository(pool)

	interest := cache.NewInterestCache(subs, logger)
	productCache := cache.NewProductCache(products)

	gateway, breaker, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build email gateway", zap.Error(err))
	}

	guard, closeRedis, err := buildGuard(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build processor guard", zap.Error(err))
	}
	defer closeRedis()

	// One pacer shared by queued and direct sends keeps the provider rate
	// bounded no matter which path is active.
	pacer := ratelimiter.New(cfg.PacingInterval)

	proc := worker.NewProcessor(queue, subs, productCache, interest, gateway, pacer, guard,
		worker.ProcessorConfig{BatchSize: cfg.BatchSize, ProcessingLease: cfg.ProcessingLease},
		m.ProcessorHooks(), logger)

	restock := service.NewRestockService(interest, productCache, subs, queue, gateway, pacer, proc,
		service.RestockConfig{
			Mode:               cfg.DeliveryMode,
			MaxAttempts:        cfg.MaxAttempts,
			ProcessImmediately: cfg.ProcessImmediately,
		}, logger)
	restock.OnEvent = m.ObserveRestock

	// Warm the interest cache; a failure here is not fatal since the first
	// restock or the scheduled refresh retries the load.
	if err := interest.Initialize(ctx); err != nil {
		logger.Warn("interest cache warm-up failed", zap.Error(err))
	}

	// ---- scheduler ----
	scheduler := worker.NewScheduler(proc, interest, worker.SchedulerConfig{
		ProcessInterval:      cfg.ProcessInterval,
		CacheRefreshInterval: cfg.CacheRefreshInterval,
	}, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	// ---- HTTP server ----
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; admin and inventory endpoints will reject every token")
	}
	deps := api.Deps{
		Subscriptions: service.NewSubscriptionService(subs, interest, logger),
		Restock:       restock,
		ProductHooks:  service.NewProductHooks(productCache, interest, logger),
		Admin:         service.NewAdminService(queue, interest, proc, logger),
		Interest:      interest,
		Products:      productCache,
		Verifier:      auth.NewVerifier(cfg.JWTSecret),
		DB:            pool,
		Gatherer:      reg,
	}
	if breaker != nil {
		deps.BreakerState = breaker.State
	}
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	// 1. Stop accepting new HTTP requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop scheduling runs and let an in-flight batch finish.
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", zap.Error(err))
	}

	// 3. Wait for runs kicked by restock events.
	restock.Wait()

	logger.Info("server stopped cleanly")
}

// buildGateway returns the configured email gateway wrapped in a circuit
// breaker. The breaker is nil for the log gateway.
func buildGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (provider.Gateway, *provider.BreakerGateway, error) {
	var inner provider.Gateway
	switch cfg.Gateway {
	case "log":
		return provider.NewLogGateway(logger), nil, nil
	case "webhook":
		inner = provider.NewWebhookGateway(cfg.WebhookURL, cfg.ProviderTimeout)
	case "ses":
		g, err := provider.NewSESGateway(ctx, provider.SESConfig{
			Region:           cfg.SESRegion,
			FromEmail:        cfg.SESFromEmail,
			ConfigurationSet: cfg.SESConfigSet,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		inner = g
	default:
		return nil, nil, fmt.Errorf("unknown gateway %q", cfg.Gateway)
	}

	bc := provider.DefaultBreakerConfig("email-" + cfg.Gateway)
	bc.ConsecutiveFailures = cfg.BreakerMaxFailures
	bc.Timeout = cfg.BreakerOpenTimeout
	breaker := provider.NewBreakerGateway(inner, bc, logger)
	return breaker, breaker, nil
}

// buildGuard returns the in-process guard, chained with a redis lock when
// REDIS_URL is set so that only one replica processes at a time.
func buildGuard(ctx context.Context, cfg *config.Config, logger *zap.Logger) (lock.Locker, func(), error) {
	local := lock.NewLocal()
	if cfg.RedisURL == "" {
		return local, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("processor lock shared through redis", zap.String("key", cfg.RedisLockKey))

	guard := lock.Chain{local, lock.NewRedis(client, cfg.RedisLockKey, cfg.RedisLockTTL, logger)}
	return guard, func() { _ = client.Close() }, nil
}
