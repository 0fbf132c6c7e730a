// Package config loads coopsearch configuration from environment variables.
//
// Every setting has a default except the database URL. LoadConfig validates the
// result; the conversion helpers hand each section to the package that consumes it.
//
// Server settings:
//
//	COOPSEARCH_HOST="0.0.0.0"
//	COOPSEARCH_PORT="8080"
//	COOPSEARCH_HEALTH_PORT="9090"
//	COOPSEARCH_ALLOWED_ORIGINS="https://portal.example.org"
//	COOPSEARCH_LIVE_IDLE_TIMEOUT="5m"
//
// Database settings:
//
//	COOPSEARCH_DB_DIALECT="postgres"  # postgres, sqlite3
//	COOPSEARCH_DATABASE_URL="postgres://coop:secret@db/portal?sslmode=disable"
//	COOPSEARCH_DATABASE_REPLICA_URLS="postgres://replica1/portal,postgres://replica2/portal"
//	COOPSEARCH_DATABASE_MAX_CONNS="20"
//
// Redis (scope cache and distributed rate limiting; unset disables both):
//
//	COOPSEARCH_REDIS_URL="redis://localhost:6379/0"
//
// Search settings:
//
//	COOPSEARCH_MIN_QUERY_LENGTH="2"
//	COOPSEARCH_MAX_PER_CATEGORY="5"
//	COOPSEARCH_DEBOUNCE="500ms"
//	COOPSEARCH_ADAPTER_TIMEOUT="0"  # 0 leaves timeouts to the database
//	COOPSEARCH_POLICY_FILE="/etc/coopsearch/policy.yaml"
//	COOPSEARCH_POLICY_WATCH="true"
//
// Observability settings:
//
//	COOPSEARCH_LOG_LEVEL="info"  # debug, info, warn, error
//	COOPSEARCH_LOG_FORMAT="json"  # json, text
//	COOPSEARCH_OTEL_ENABLED="true"
//	COOPSEARCH_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	store, err := sqlstore.Open(ctx, cfg.Database.PoolConfig(), logger)
package config
