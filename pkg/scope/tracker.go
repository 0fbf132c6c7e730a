package scope

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coopportal/coopsearch/pkg/auth"
)

// Phase is a step of the resolution state machine
type Phase int

const (
	Unresolved Phase = iota
	Resolving
	Resolved
)

func (p Phase) String() string {
	switch p {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is a snapshot of a tracker. CooperativeID is only meaningful when Resolved;
// nil then means no cooperative exists for the caller.
type State struct {
	Phase         Phase
	CooperativeID *string
}

// NotFound reports whether resolution finished without a cooperative
func (s State) NotFound() bool {
	return s.Phase == Resolved && s.CooperativeID == nil
}

func (s State) String() string {
	if s.Phase != Resolved {
		return s.Phase.String()
	}
	if s.CooperativeID == nil {
		return "resolved(null)"
	}
	return fmt.Sprintf("resolved(%s)", *s.CooperativeID)
}

// DefaultResolveTimeout bounds one resolution attempt
const DefaultResolveTimeout = 10 * time.Second

// Tracker drives the resolution state machine for one session
type Tracker struct {
	resolver Resolver
	timeout  time.Duration

	mu    sync.Mutex
	state State
	done  chan struct{}
	err   error
}

// NewTracker creates a tracker in the Unresolved state
func NewTracker(resolver Resolver) *Tracker {
	return &Tracker{resolver: resolver, timeout: DefaultResolveTimeout}
}

// State returns the current state
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start moves Unresolved to Resolving and begins the lookup in the background. It
// only starts for a COOPERATIVE_ADMIN with a user id and reports whether a lookup was
// started. The lookup is not cancelled with ctx, so a superseded search does not abort
// a resolution other searches are waiting on.
func (t *Tracker) Start(ctx context.Context, ac auth.Context) bool {
	if ac.Role != auth.RoleCooperativeAdmin || ac.User() == "" {
		return false
	}

	t.mu.Lock()
	if t.state.Phase != Unresolved {
		t.mu.Unlock()
		return false
	}
	t.state = State{Phase: Resolving}
	t.err = nil
	done := make(chan struct{})
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)

		resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()
		id, err := t.resolver.Resolve(resolveCtx, ac)

		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			t.state = State{Phase: Unresolved}
			t.err = err
			return
		}
		t.state = State{Phase: Resolved, CooperativeID: id}
	}()

	return true
}

// Wait blocks while the tracker is Resolving. It returns the resolved id (nil when no
// cooperative exists), the lookup error of a failed attempt, or ErrUnresolved when no
// resolution was started.
func (t *Tracker) Wait(ctx context.Context) (*string, error) {
	t.mu.Lock()
	state, done, lastErr := t.state, t.done, t.err
	t.mu.Unlock()

	switch state.Phase {
	case Resolved:
		return state.CooperativeID, nil
	case Unresolved:
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrUnresolved
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Phase == Resolved {
		return t.state.CooperativeID, nil
	}
	if t.err != nil {
		return nil, t.err
	}
	return nil, ErrUnresolved
}

// Resolve starts resolution if needed and waits for it
func (t *Tracker) Resolve(ctx context.Context, ac auth.Context) (*string, error) {
	t.Start(ctx, ac)
	return t.Wait(ctx)
}
