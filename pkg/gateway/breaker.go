package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the per-table circuit breakers
type BreakerSettings struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval after which closed-state counts are cleared; 0 never clears
	Interval time.Duration
	// Timeout spent open before probing again
	Timeout time.Duration
	// MinRequests before the failure ratio is considered
	MinRequests uint32
	// FailureRatio at or above which the breaker trips
	FailureRatio float64
	// OnStateChange is called after a table's breaker changes state
	OnStateChange func(table string, from, to gobreaker.State)
}

// DefaultBreakerSettings returns conservative defaults
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// Breaker wraps a Gateway with one circuit breaker per table, so a failing table fails
// fast without affecting the others
type Breaker struct {
	next     Gateway
	settings BreakerSettings
	logger   logrus.FieldLogger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaking gateway
func NewBreaker(next Gateway, settings BreakerSettings, logger logrus.FieldLogger) *Breaker {
	return &Breaker{
		next:     next,
		settings: settings,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Find implements Gateway
func (b *Breaker) Find(ctx context.Context, q Query) ([]Record, error) {
	res, err := b.execute(q.Table, func() (interface{}, error) {
		return b.next.Find(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Record), nil
}

// Count implements Gateway
func (b *Breaker) Count(ctx context.Context, q Query) (int, error) {
	res, err := b.execute(q.Table, func() (interface{}, error) {
		return b.next.Count(ctx, q)
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// State returns the current state of a table's breaker
func (b *Breaker) State(table string) gobreaker.State {
	return b.breaker(table).State()
}

func (b *Breaker) execute(table string, fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.breaker(table).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, table)
	}
	return res, err
}

func (b *Breaker) breaker(table string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[table]; ok {
		return cb
	}

	s := b.settings
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        table,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		// Superseded searches cancel their context; that says nothing about the table.
		// Caller mistakes (unknown tables, malformed queries) do not trip it either.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrInvalidQuery) ||
				errors.Is(err, ErrUnknownTable) ||
				errors.Is(err, ErrUnknownColumn)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry := b.logger.WithFields(logrus.Fields{"table": name, "from": from.String(), "to": to.String()})
			if to == gobreaker.StateOpen {
				entry.Warn("gateway circuit breaker opened")
			} else {
				entry.Info("gateway circuit breaker state changed")
			}
			if s.OnStateChange != nil {
				s.OnStateChange(name, from, to)
			}
		},
	})
	b.breakers[table] = cb
	return cb
}
