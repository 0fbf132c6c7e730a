package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/coopportal/coopsearch/pkg/gateway/sqlstore"
	"github.com/coopportal/coopsearch/pkg/middleware"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/scope"
	"github.com/coopportal/coopsearch/pkg/search"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Search        SearchConfig
	Scope         ScopeConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	AllowedOrigins  []string
	LiveIdleTimeout time.Duration
	// TrustProxy honours X-Forwarded-For for anonymous rate limit keys
	TrustProxy bool
}

// DatabaseConfig holds the portal database connection settings
type DatabaseConfig struct {
	Dialect             string
	URL                 string
	ReplicaURLs         []string
	MaxConns            int
	MinConns            int
	Timeout             time.Duration
	HealthCheckInterval time.Duration
}

// RedisConfig holds redis settings. An empty URL disables every redis-backed feature.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// SearchConfig holds engine, live search and policy settings
type SearchConfig struct {
	MinQueryLength int
	MaxPerCategory int
	Debounce       time.Duration
	AdapterTimeout time.Duration

	PolicyFile  string
	WatchPolicy bool

	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
}

// ScopeConfig holds scope cache settings
type ScopeConfig struct {
	CacheSize int
	CacheTTL  time.Duration
	KeyPrefix string
}

// RateLimitConfig holds per-user rate limit settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Search:        loadSearchConfig(),
		Scope:         loadScopeConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("COOPSEARCH_HOST", "0.0.0.0"),
		Port:            getEnv("COOPSEARCH_PORT", "8080"),
		ReadTimeout:     getEnvDuration("COOPSEARCH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("COOPSEARCH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("COOPSEARCH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("COOPSEARCH_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("COOPSEARCH_HEALTH_PORT", "9090"),
		AllowedOrigins:  getEnvList("COOPSEARCH_ALLOWED_ORIGINS"),
		LiveIdleTimeout: getEnvDuration("COOPSEARCH_LIVE_IDLE_TIMEOUT", 5*time.Minute),
		TrustProxy:      getEnvBool("COOPSEARCH_TRUST_PROXY", false),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Dialect:             getEnv("COOPSEARCH_DB_DIALECT", string(sqlstore.DialectPostgres)),
		URL:                 getEnv("COOPSEARCH_DATABASE_URL", ""),
		ReplicaURLs:         sqlstore.ParseReplicaURLs(getEnv("COOPSEARCH_DATABASE_REPLICA_URLS", "")),
		MaxConns:            getEnvInt("COOPSEARCH_DATABASE_MAX_CONNS", 20),
		MinConns:            getEnvInt("COOPSEARCH_DATABASE_MIN_CONNS", 2),
		Timeout:             getEnvDuration("COOPSEARCH_DATABASE_TIMEOUT", 5*time.Second),
		HealthCheckInterval: getEnvDuration("COOPSEARCH_DATABASE_HEALTH_INTERVAL", 30*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("COOPSEARCH_REDIS_URL", ""),
		Password:   getEnv("COOPSEARCH_REDIS_PASSWORD", ""),
		DB:         getEnvInt("COOPSEARCH_REDIS_DB", -1),
		PoolSize:   getEnvInt("COOPSEARCH_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("COOPSEARCH_REDIS_MAX_RETRIES", 3),
	}
}

func loadSearchConfig() SearchConfig {
	breaker := gateway.DefaultBreakerSettings()
	defaults := search.DefaultConfig()
	return SearchConfig{
		MinQueryLength:      getEnvInt("COOPSEARCH_MIN_QUERY_LENGTH", defaults.MinQueryLength),
		MaxPerCategory:      getEnvInt("COOPSEARCH_MAX_PER_CATEGORY", defaults.MaxPerCategory),
		Debounce:            getEnvDuration("COOPSEARCH_DEBOUNCE", search.DefaultDebounce),
		AdapterTimeout:      getEnvDuration("COOPSEARCH_ADAPTER_TIMEOUT", 0),
		PolicyFile:          getEnv("COOPSEARCH_POLICY_FILE", ""),
		WatchPolicy:         getEnvBool("COOPSEARCH_POLICY_WATCH", false),
		BreakerTimeout:      getEnvDuration("COOPSEARCH_BREAKER_TIMEOUT", breaker.Timeout),
		BreakerFailureRatio: getEnvFloat("COOPSEARCH_BREAKER_FAILURE_RATIO", breaker.FailureRatio),
		BreakerMinRequests:  uint32(getEnvInt("COOPSEARCH_BREAKER_MIN_REQUESTS", int(breaker.MinRequests))),
	}
}

func loadScopeConfig() ScopeConfig {
	defaults := scope.DefaultCacheConfig()
	return ScopeConfig{
		CacheSize: getEnvInt("COOPSEARCH_SCOPE_CACHE_SIZE", defaults.Size),
		CacheTTL:  getEnvDuration("COOPSEARCH_SCOPE_CACHE_TTL", defaults.TTL),
		KeyPrefix: getEnv("COOPSEARCH_SCOPE_KEY_PREFIX", defaults.KeyPrefix),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	defaults := middleware.DefaultRateLimitConfig()
	return RateLimitConfig{
		Enabled:           getEnvBool("COOPSEARCH_RATELIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("COOPSEARCH_RATELIMIT_PER_MINUTE", defaults.RequestsPerWindow),
		Burst:             getEnvInt("COOPSEARCH_RATELIMIT_BURST", defaults.BurstSize),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("COOPSEARCH_LOG_LEVEL", "info"),
		LogFormat:          getEnv("COOPSEARCH_LOG_FORMAT", observability.FormatJSON),
		MetricsEnabled:     getEnvBool("COOPSEARCH_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("COOPSEARCH_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("COOPSEARCH_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("COOPSEARCH_OTEL_SERVICE_NAME", "coopsearch"),
		OTelServiceVersion: getEnv("COOPSEARCH_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("COOPSEARCH_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("COOPSEARCH_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if _, err := sqlstore.ParseDialect(c.Database.Dialect); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required (COOPSEARCH_DATABASE_URL)")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max connections must be positive")
	}

	// Validate search config
	if c.Search.MinQueryLength < 1 {
		return fmt.Errorf("min query length must be at least 1")
	}
	if c.Search.MaxPerCategory < 1 || c.Search.MaxPerCategory > 50 {
		return fmt.Errorf("max per category must be between 1 and 50, got %d", c.Search.MaxPerCategory)
	}
	if c.Search.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive")
	}
	if c.Search.AdapterTimeout < 0 {
		return fmt.Errorf("adapter timeout must not be negative")
	}
	if c.Search.WatchPolicy && c.Search.PolicyFile == "" {
		return fmt.Errorf("policy watch requires a policy file (COOPSEARCH_POLICY_FILE)")
	}
	if c.Search.BreakerFailureRatio <= 0 || c.Search.BreakerFailureRatio > 1 {
		return fmt.Errorf("breaker failure ratio must be in (0, 1], got %v", c.Search.BreakerFailureRatio)
	}

	if c.Scope.CacheSize < 1 {
		return fmt.Errorf("scope cache size must be positive")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate limit requests per minute must be positive when rate limiting is enabled")
	}

	// Validate observability config
	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format %q (must be json or text)", c.Observability.LogFormat)
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr returns the API listen address
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// HealthAddr returns the health/metrics listen address
func (c ServerConfig) HealthAddr() string {
	return c.Host + ":" + c.HealthPort
}

// PoolConfig converts the database settings for sqlstore
func (c DatabaseConfig) PoolConfig() sqlstore.PoolConfig {
	dialect, _ := sqlstore.ParseDialect(c.Dialect) // checked by Validate
	return sqlstore.PoolConfig{
		Dialect:     dialect,
		PrimaryURL:  c.URL,
		ReplicaURLs: c.ReplicaURLs,
		MaxConns:    c.MaxConns,
		MinConns:    c.MinConns,
		Timeout:     c.Timeout,
	}
}

// Options converts the redis settings for the scope cache client
func (c RedisConfig) Options() scope.RedisOptions {
	return scope.RedisOptions{
		URL:        c.URL,
		Password:   c.Password,
		DB:         c.DB,
		PoolSize:   c.PoolSize,
		MaxRetries: c.MaxRetries,
	}
}

// Enabled reports whether a redis URL was configured
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// EngineConfig converts the search settings for the engine
func (c SearchConfig) EngineConfig() search.Config {
	return search.Config{
		MinQueryLength: c.MinQueryLength,
		MaxPerCategory: c.MaxPerCategory,
		AdapterTimeout: c.AdapterTimeout,
	}
}

// BreakerSettings converts the breaker settings for the gateway
func (c SearchConfig) BreakerSettings() gateway.BreakerSettings {
	s := gateway.DefaultBreakerSettings()
	s.Timeout = c.BreakerTimeout
	s.FailureRatio = c.BreakerFailureRatio
	s.MinRequests = c.BreakerMinRequests
	return s
}

// CacheConfig converts the scope cache settings
func (c ScopeConfig) CacheConfig() scope.CacheConfig {
	return scope.CacheConfig{
		Size:      c.CacheSize,
		TTL:       c.CacheTTL,
		KeyPrefix: c.KeyPrefix,
	}
}

// LimiterConfig converts the rate limit settings for the middleware
func (c RateLimitConfig) LimiterConfig() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{
		RequestsPerWindow: c.RequestsPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         c.Burst,
	}
}

// OTel converts the OpenTelemetry settings
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable as a slice
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
