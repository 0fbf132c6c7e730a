// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing, health checks and graceful shutdown for the search service.
//
// # Structured Logging
//
// Loggers are logrus loggers; components accept a logrus.FieldLogger:
//
//	logger, err := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//	logger.WithField("category", "complaint").Warn("adapter failed")
//
// Request-scoped loggers carry the request and user ids set by the HTTP middleware:
//
//	observability.FromContext(r.Context()).Info("search served")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.SearchesTotal.WithLabelValues("COUNTY_ADMIN", "ok").Inc()
//
// All metric names carry the coopsearch_ prefix.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	router.HandleFunc("/healthz", checker.Liveness)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "coopsearch",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
