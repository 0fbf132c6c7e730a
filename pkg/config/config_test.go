package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopportal/coopsearch/pkg/gateway/sqlstore"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "COOPSEARCH_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "COOPSEARCH_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("COOPSEARCH_TEST_BOOL", "1")
	t.Setenv("COOPSEARCH_TEST_INT", "42")
	t.Setenv("COOPSEARCH_TEST_BAD_INT", "forty-two")
	t.Setenv("COOPSEARCH_TEST_FLOAT", "0.25")
	t.Setenv("COOPSEARCH_TEST_DURATION", "750ms")
	t.Setenv("COOPSEARCH_TEST_LIST", " https://a.example.org, ,https://b.example.org ")

	assert.True(t, getEnvBool("COOPSEARCH_TEST_BOOL", false))
	assert.False(t, getEnvBool("COOPSEARCH_TEST_BOOL_UNSET", false))
	assert.Equal(t, 42, getEnvInt("COOPSEARCH_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("COOPSEARCH_TEST_BAD_INT", 1))
	assert.Equal(t, 0.25, getEnvFloat("COOPSEARCH_TEST_FLOAT", 1))
	assert.Equal(t, 750*time.Millisecond, getEnvDuration("COOPSEARCH_TEST_DURATION", time.Second))
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, getEnvList("COOPSEARCH_TEST_LIST"))
	assert.Nil(t, getEnvList("COOPSEARCH_TEST_LIST_UNSET"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("COOPSEARCH_DATABASE_URL", "postgres://localhost/portal")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
	assert.Equal(t, 2, cfg.Search.MinQueryLength)
	assert.Equal(t, 5, cfg.Search.MaxPerCategory)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.Debounce)
	assert.Zero(t, cfg.Search.AdapterTimeout)
	assert.False(t, cfg.Redis.Enabled())
	assert.True(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.Server.TrustProxy)
	assert.Equal(t, "coopsearch:scope:", cfg.Scope.KeyPrefix)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("COOPSEARCH_DB_DIALECT", "sqlite")
	t.Setenv("COOPSEARCH_DATABASE_URL", "file:portal.db")
	t.Setenv("COOPSEARCH_DATABASE_REPLICA_URLS", "file:r1.db, file:r2.db")
	t.Setenv("COOPSEARCH_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("COOPSEARCH_MAX_PER_CATEGORY", "10")
	t.Setenv("COOPSEARCH_ADAPTER_TIMEOUT", "2s")
	t.Setenv("COOPSEARCH_POLICY_FILE", "/etc/coopsearch/policy.yaml")
	t.Setenv("COOPSEARCH_POLICY_WATCH", "true")
	t.Setenv("COOPSEARCH_RATELIMIT_PER_MINUTE", "30")
	t.Setenv("COOPSEARCH_TRUST_PROXY", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	pool := cfg.Database.PoolConfig()
	assert.Equal(t, sqlstore.DialectSQLite, pool.Dialect)
	assert.Equal(t, []string{"file:r1.db", "file:r2.db"}, pool.ReplicaURLs)

	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.Options().URL)

	engine := cfg.Search.EngineConfig()
	assert.Equal(t, 10, engine.MaxPerCategory)
	assert.Equal(t, 2*time.Second, engine.AdapterTimeout)
	assert.True(t, cfg.Search.WatchPolicy)

	limiter := cfg.RateLimit.LimiterConfig()
	assert.Equal(t, 30, limiter.RequestsPerWindow)
	assert.Equal(t, time.Minute, limiter.WindowDuration)
	assert.True(t, cfg.Server.TrustProxy)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   loadServerConfig(),
			Database: DatabaseConfig{Dialect: "postgres", URL: "postgres://localhost/portal", MaxConns: 10},
			Search: SearchConfig{
				MinQueryLength:      2,
				MaxPerCategory:      5,
				Debounce:            500 * time.Millisecond,
				BreakerFailureRatio: 0.6,
			},
			Scope:         ScopeConfig{CacheSize: 100},
			RateLimit:     RateLimitConfig{Enabled: true, RequestsPerMinute: 60},
			Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"unknown dialect", func(c *Config) { c.Database.Dialect = "mysql" }, "unsupported dialect"},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "database URL is required"},
		{"zero min query", func(c *Config) { c.Search.MinQueryLength = 0 }, "min query length"},
		{"cap too large", func(c *Config) { c.Search.MaxPerCategory = 51 }, "max per category"},
		{"no debounce", func(c *Config) { c.Search.Debounce = 0 }, "debounce"},
		{"negative adapter timeout", func(c *Config) { c.Search.AdapterTimeout = -time.Second }, "adapter timeout"},
		{"watch without file", func(c *Config) { c.Search.WatchPolicy = true }, "policy watch"},
		{"breaker ratio", func(c *Config) { c.Search.BreakerFailureRatio = 1.5 }, "failure ratio"},
		{"rate limit", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, "rate limit"},
		{"log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "invalid log level"},
		{"log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "invalid log format"},
		{"otel endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "coopsearch"
		}, "endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_RequiresDatabase(t *testing.T) {
	t.Setenv("COOPSEARCH_DATABASE_URL", "")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
