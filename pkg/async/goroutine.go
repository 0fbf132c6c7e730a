package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement (a zero timeout means none)
// - Error logging
//
// Use this instead of bare `go func()` for background work. The returned channel
// is closed once fn has returned or panicked.
//
// Example:
//
//	SafeGo(ctx, logger, 0, "policy watcher", func(ctx context.Context) error {
//	    return store.Watch(ctx, path)
//	})
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Run(parentCtx, timeout, fn); err != nil {
			logTaskError(logger, taskName, err)
		}
	}()
	return done
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
func SafeGoNoError(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context)) <-chan struct{} {
	return SafeGo(parentCtx, logger, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// PanicError is returned by Run when fn panicked
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Run calls fn synchronously under the same guarantees as SafeGo and returns its
// error. A panic is converted to a *PanicError.
func Run(parentCtx context.Context, timeout time.Duration, fn func(context.Context) error) (err error) {
	ctx, cancel := parentCtx, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return fn(ctx)
}

func logTaskError(logger logrus.FieldLogger, taskName string, err error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("task", taskName)

	if pe, ok := err.(*PanicError); ok {
		entry.WithField("stack", string(pe.Stack)).Errorf("PANIC in background task: %v", pe.Value)
		return
	}
	if err == context.Canceled {
		entry.Debug("Background task canceled")
		return
	}
	entry.WithError(err).Warn("Background task failed")
}
