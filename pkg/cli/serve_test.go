package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopportal/coopsearch/pkg/config"
	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/coopportal/coopsearch/pkg/gateway/gatewaytest"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/rbac"
)

// syncBuffer guards a buffer written by listener goroutines that may outlive runServe
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(dsn string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			HealthPort:      "0",
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Dialect: "sqlite",
			URL:     dsn,
		},
		Search: config.SearchConfig{
			MinQueryLength:      2,
			MaxPerCategory:      5,
			Debounce:            50 * time.Millisecond,
			BreakerTimeout:      30 * time.Second,
			BreakerFailureRatio: 0.6,
			BreakerMinRequests:  5,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	logs := &syncBuffer{}
	cfg := testConfig(seedDatabase(t))

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, logs) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not stop")
	}
	assert.Contains(t, logs.String(), "Server stopped")
}

func TestRunServe_BadDatabase(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing", "portal.db"))
	err := runServe(context.Background(), cfg, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to connect to database")
}

func TestRunServe_ReleasesResourcesWhenStartFails(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(seedDatabase(t))
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Search.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	logs := &syncBuffer{}

	err := runServe(context.Background(), cfg, logs)
	require.ErrorContains(t, err, "failed to load visibility policy")

	assert.Contains(t, logs.String(), `"released":3`)
	assert.Eventually(t, func() bool {
		return mr.CurrentConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewGateway_ReportsBreakerState(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	fake := gatewaytest.New().FailTable("trainers", errors.New("connection refused"))
	settings := gateway.DefaultBreakerSettings()
	settings.MinRequests = 2
	settings.FailureRatio = 0.5
	gw := newGateway(fake, settings, observability.NopLogger(), metrics)

	q := gateway.Query{Table: "trainers", Columns: []string{"id"}, Limit: 1}
	for i := 0; i < 2; i++ {
		_, err := gw.Find(context.Background(), q)
		require.Error(t, err)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.BreakerState.WithLabelValues("trainers")))
}

func TestNewPolicyStore(t *testing.T) {
	store, err := newPolicyStore(context.Background(), config.SearchConfig{}, observability.NopLogger(), nil)
	require.NoError(t, err)
	assert.NotNil(t, store.Policy().VisibleCategories("CITIZEN"))

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  trainer:\n    hidden: [CITIZEN]\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, err = newPolicyStore(ctx, config.SearchConfig{PolicyFile: path, WatchPolicy: true},
		observability.NopLogger(), observability.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.NotContains(t, store.Policy().VisibleCategories("CITIZEN"), rbac.CategoryTrainer)

	_, err = newPolicyStore(ctx, config.SearchConfig{PolicyFile: filepath.Join(t.TempDir(), "nope.yaml")},
		observability.NopLogger(), nil)
	assert.Error(t, err)
}
