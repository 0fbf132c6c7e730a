package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/scope"
)

// DefaultDebounce is the quiet period between the last keystroke and the search
const DefaultDebounce = 500 * time.Millisecond

const updatesBuffer = 16

// SessionConfig configures a Session. Zero values take defaults.
type SessionConfig struct {
	Debounce       time.Duration
	Clock          clock.Clock
	MaxPerCategory int
	Tracker        *scope.Tracker
	Logger         logrus.FieldLogger
	Metrics        *observability.Metrics
}

// Snapshot is the state of a session after a published change
type Snapshot struct {
	Query               string                   `json:"query"`
	Results             CategorizedResults       `json:"results"`
	TotalCount          int                      `json:"total_count"`
	Loading             bool                     `json:"loading"`
	Err                 string                   `json:"error,omitempty"`
	Failures            map[rbac.Category]string `json:"failures,omitempty"`
	CooperativeNotFound bool                     `json:"cooperative_not_found,omitempty"`
	Generation          uint64                   `json:"generation"`
}

// Session debounces keystrokes from one caller into searches. Only the most recent
// query fires, starting a search cancels the one in flight, and a result whose
// generation is no longer current is dropped.
type Session struct {
	searcher Searcher
	auth     auth.Context
	tracker  *scope.Tracker
	debounce time.Duration
	clock    clock.Clock
	max      int
	logger   logrus.FieldLogger
	metrics  *observability.Metrics

	ctx  context.Context
	stop context.CancelFunc

	mu         sync.Mutex
	timer      *clock.Timer
	timerSeq   uint64
	pending    string
	generation uint64
	cancel     context.CancelFunc
	snapshot   Snapshot
	updates    chan Snapshot
	closed     bool
}

// NewSession creates a session for one authenticated caller
func NewSession(searcher Searcher, ac auth.Context, cfg SessionConfig) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Session{
		searcher: searcher,
		auth:     ac,
		tracker:  cfg.Tracker,
		debounce: cfg.Debounce,
		clock:    cfg.Clock,
		max:      cfg.MaxPerCategory,
		logger:   cfg.Logger.WithFields(logrus.Fields{"component": "session", "role": ac.Role}),
		metrics:  cfg.Metrics,
		ctx:      ctx,
		stop:     stop,
		snapshot: Snapshot{Results: NewCategorizedResults()},
		updates:  make(chan Snapshot, updatesBuffer),
	}
	if s.metrics != nil {
		s.metrics.LiveSessionsActive.Inc()
	}
	return s
}

// NewSession creates a session backed by the engine. The session gets its own scope
// tracker unless cfg provides one.
func (e *Engine) NewSession(ac auth.Context, cfg SessionConfig) *Session {
	if cfg.Tracker == nil && e.resolver != nil {
		cfg.Tracker = scope.NewTracker(e.resolver)
	}
	if cfg.Logger == nil {
		cfg.Logger = e.logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = e.metrics
	}
	return NewSession(e, ac, cfg)
}

// Type records a keystroke. Any pending search is dropped and the quiet period restarts.
func (s *Session) Type(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.pending = query
	if s.timer != nil && s.timer.Stop() && s.metrics != nil {
		s.metrics.DebouncedKeystrokes.Inc()
	}
	// A callback that already expired may still be waiting for s.mu; the sequence
	// number lets it see it was superseded.
	s.timerSeq++
	seq := s.timerSeq
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(seq) })
}

// Snapshot returns the latest published state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Updates delivers every published snapshot. Slow readers lose the oldest snapshots.
// The channel is closed by Close.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Close stops the session, cancelling any pending or running search
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.stop()
	close(s.updates)
	if s.metrics != nil {
		s.metrics.LiveSessionsActive.Dec()
	}
}

// fire starts a search for the pending query once the quiet period of timer seq has
// elapsed
func (s *Session) fire(seq uint64) {
	s.mu.Lock()
	if s.closed || seq != s.timerSeq {
		s.mu.Unlock()
		return
	}
	query := s.pending
	s.generation++
	gen := s.generation
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel

	next := s.snapshot
	next.Query = query
	next.Loading = true
	next.Generation = gen
	s.publishLocked(next)
	s.mu.Unlock()

	go s.run(ctx, cancel, query, gen)
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, query string, gen uint64) {
	defer cancel()
	defer observability.RecoverPanic(s.logger, "live search")

	res, err := s.searcher.Search(ctx, Request{
		Query:          query,
		Auth:           s.auth,
		MaxPerCategory: s.max,
		Scope:          s.tracker,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		if s.metrics != nil {
			s.metrics.StaleResultsDiscarded.Inc()
		}
		s.logger.WithField("generation", gen).Debug("Discarding stale search result")
		return
	}
	s.cancel = nil

	next := Snapshot{
		Query:      query,
		Results:    NewCategorizedResults(),
		Generation: gen,
	}
	if res != nil {
		next.Results = res.Categories
		next.TotalCount = res.TotalCount
		next.Failures = res.Failures
		next.CooperativeNotFound = res.CooperativeNotFound
	}
	switch {
	case errors.Is(err, ErrCooperativeNotFound):
		next.CooperativeNotFound = true
	case err != nil:
		next.Err = err.Error()
	}
	s.publishLocked(next)
}

// publishLocked must be called with s.mu held
func (s *Session) publishLocked(snap Snapshot) {
	s.snapshot = snap
	for {
		select {
		case s.updates <- snap:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
