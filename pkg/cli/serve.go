package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/coopportal/coopsearch/pkg/api"
	"github.com/coopportal/coopsearch/pkg/config"
	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/coopportal/coopsearch/pkg/gateway/sqlstore"
	"github.com/coopportal/coopsearch/pkg/middleware"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/scope"
	"github.com/coopportal/coopsearch/pkg/search"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the search API server",
		Long:  "Runs the HTTP and live search API, plus health and metrics on a separate port. Configuration is read from COOPSEARCH_* environment variables.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, cmd.ErrOrStderr())
		},
	}
}

// runServe wires the service from cfg and blocks until ctx is done or a listener fails
func runServe(ctx context.Context, cfg *config.Config, logOutput io.Writer) error {
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, logOutput)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"version": Version,
		"addr":    cfg.Server.Addr(),
	}).Info("Starting coopsearch")

	// Background routines started below stop with ctx, including on a failed start
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	// closers are handed to the shutdown manager once wiring succeeds; until then
	// an early return releases them
	var closers []func(context.Context) error
	wired := false
	defer func() {
		if !wired {
			releaseAll(closers, logger)
		}
	}()
	closers = append(closers, func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	var (
		metrics  *observability.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(registry)
		gatherer = registry
	}

	store, err := sqlstore.Open(ctx, cfg.Database.PoolConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	pool := store.Pool()
	closers = append(closers, func(context.Context) error {
		return pool.Close()
	})
	if pool.ReplicaCount() > 0 {
		pool.StartHealthCheckRoutine(ctx, cfg.Database.HealthCheckInterval)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = scope.NewRedisClient(ctx, cfg.Redis.Options())
		if err != nil {
			// Redis only shares caches and rate limits between replicas
			logger.WithError(err).Warn("Redis unavailable, continuing with in-process caches")
			redisClient = nil
		}
	}
	if redisClient != nil {
		closers = append(closers, func(context.Context) error {
			return redisClient.Close()
		})
	}

	gw := newGateway(store, cfg.Search.BreakerSettings(), logger, metrics)

	var resolver scope.Resolver = scope.NewGatewayResolver(gw, logger, metrics)
	resolver = scope.NewCachedResolver(resolver, redisClient, cfg.Scope.CacheConfig(), logger, metrics)

	policies, err := newPolicyStore(ctx, cfg.Search, logger, metrics)
	if err != nil {
		return err
	}

	engine := search.NewEngine(gw, policies, resolver, cfg.Search.EngineConfig(), logger, metrics)

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			limiter = middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimit.LimiterConfig(), "")
		} else {
			local := middleware.NewRateLimiter(cfg.RateLimit.LimiterConfig(), clock.New())
			local.StartCleanup(ctx)
			limiter = local
		}
	}

	srv := api.NewServer(engine, api.Options{
		Logger:          logger,
		Metrics:         metrics,
		Limiter:         limiter,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		TrustProxy:      cfg.Server.TrustProxy,
		Debounce:        cfg.Search.Debounce,
		LiveIdleTimeout: cfg.Server.LiveIdleTimeout,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	api.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(pool.Primary(), redisClient, Version), gatherer)
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	for _, c := range closers {
		shutdown.RegisterShutdownFunc(c)
	}
	wired = true

	errCh := make(chan error, 2)
	for _, s := range []*http.Server{httpServer, healthServer} {
		go func(s *http.Server) {
			logger.WithField("addr", s.Addr).Info("Listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listener %s failed: %w", s.Addr, err)
			}
		}(s)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		logger.WithError(runErr).Error("Server failed")
	}

	if err := shutdown.Shutdown(context.Background()); err != nil {
		return errors.Join(runErr, err)
	}
	logger.Info("Server stopped")
	return runErr
}

// releaseAll runs closers in reverse order of acquisition
func releaseAll(closers []func(context.Context) error, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			logger.WithError(err).Warn("Failed to release resource after aborted start")
		}
	}
	logger.WithField("released", len(closers)).Info("Startup aborted")
}

// newGateway layers the circuit breakers over the instrumented store, so metrics see
// only the calls that reach the database
func newGateway(store gateway.Gateway, settings gateway.BreakerSettings, logger logrus.FieldLogger, metrics *observability.Metrics) gateway.Gateway {
	if metrics != nil {
		settings.OnStateChange = func(table string, _, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(table).Set(float64(to))
		}
	}
	return gateway.NewBreaker(gateway.NewInstrumented(store, metrics), settings, logger)
}

// newPolicyStore loads the visibility policy file, if any, and watches it when asked
func newPolicyStore(ctx context.Context, cfg config.SearchConfig, logger logrus.FieldLogger, metrics *observability.Metrics) (*rbac.Store, error) {
	policies := rbac.NewStore(nil)
	if cfg.PolicyFile == "" {
		return policies, nil
	}

	p, err := rbac.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load visibility policy: %w", err)
	}
	policies = rbac.NewStore(p)
	logger.WithField("path", cfg.PolicyFile).Info("Loaded visibility policy")

	if !cfg.WatchPolicy {
		return policies, nil
	}
	if metrics != nil {
		policies.OnReload(func(err error) {
			status := "success"
			if err != nil {
				status = "error"
			}
			metrics.PolicyReloadsTotal.WithLabelValues(status).Inc()
		})
	}
	if err := policies.Watch(ctx, cfg.PolicyFile, logger); err != nil {
		return nil, err
	}
	return policies, nil
}
