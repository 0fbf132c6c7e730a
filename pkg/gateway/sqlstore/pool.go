package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coopportal/coopsearch/pkg/observability"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

// PoolConfig holds database connection configuration
type PoolConfig struct {
	Dialect     Dialect
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Pool holds a primary connection and optional read replicas
type Pool struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  atomic.Uint32
	mu       sync.RWMutex
	logger   logrus.FieldLogger
}

// NewPool wraps already opened databases
func NewPool(primary *sql.DB, replicas ...*sql.DB) *Pool {
	return &Pool{
		primary:  primary,
		replicas: replicas,
		logger:   observability.NopLogger(),
	}
}

// OpenPool connects to the primary and every reachable replica. An unreachable
// primary is an error; unreachable replicas are logged and skipped.
func OpenPool(ctx context.Context, cfg PoolConfig, logger logrus.FieldLogger) (*Pool, error) {
	if cfg.Dialect == "" {
		cfg.Dialect = DialectPostgres
	}
	primary, err := openDB(ctx, cfg, cfg.PrimaryURL, cfg.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary: %w", err)
	}

	p := &Pool{primary: primary, logger: logger}

	replicaMaxConns := cfg.MaxConns / 2
	if replicaMaxConns < 2 {
		replicaMaxConns = 2
	}
	for i, url := range cfg.ReplicaURLs {
		replica, err := openDB(ctx, cfg, url, replicaMaxConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("skipping unreachable read replica")
			continue
		}
		p.replicas = append(p.replicas, replica)
	}

	logger.WithFields(logrus.Fields{
		"dialect":  cfg.Dialect,
		"replicas": len(p.replicas),
	}).Info("database pool initialized")

	return p, nil
}

func openDB(ctx context.Context, cfg PoolConfig, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(cfg.Dialect.driverName(), url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return db, nil
}

// Primary returns the primary database
func (p *Pool) Primary() *sql.DB {
	return p.primary
}

// Reader returns a read replica using round-robin selection, or the primary when
// there are none
func (p *Pool) Reader() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.replicas) == 0 {
		return p.primary
	}
	index := p.current.Add(1)
	return p.replicas[int(index%uint32(len(p.replicas)))]
}

// ReplicaCount returns the number of active replicas
func (p *Pool) ReplicaCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.replicas)
}

// RemoveUnhealthyReplicas closes and drops replicas that fail a ping
func (p *Pool) RemoveUnhealthyReplicas(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(p.replicas))
	removed := 0
	for _, replica := range p.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
			continue
		}
		healthy = append(healthy, replica)
	}
	p.replicas = healthy
	return removed
}

// StartHealthCheckRoutine drops unhealthy replicas every interval until ctx is done
func (p *Pool) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer observability.RecoverPanic(p.logger, "replica health check")

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				removed := p.RemoveUnhealthyReplicas(checkCtx)
				cancel()
				if removed > 0 {
					p.logger.WithField("removed", removed).Warn("removed unhealthy read replicas")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes every connection
func (p *Pool) Close() error {
	p.mu.Lock()
	replicas := p.replicas
	p.replicas = nil
	p.mu.Unlock()

	var errs []error
	if p.primary != nil {
		if err := p.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("primary close error: %w", err))
		}
	}
	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(s string) []string {
	if s == "" {
		return nil
	}
	var urls []string
	for _, u := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

// Open connects a pool and returns a store over it
func Open(ctx context.Context, cfg PoolConfig, logger logrus.FieldLogger, opts ...Option) (*Store, error) {
	if cfg.Dialect == "" {
		cfg.Dialect = DialectPostgres
	}
	pool, err := OpenPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithPool(pool, cfg.Dialect, opts...), nil
}
