package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestSafeGo_Success(t *testing.T) {
	logger, hook := test.NewNullLogger()
	executed := atomic.Bool{}

	wait(t, SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}))

	assert.True(t, executed.Load())
	assert.Empty(t, hook.AllEntries())
}

func TestSafeGo_WithError(t *testing.T) {
	logger, hook := test.NewNullLogger()

	wait(t, SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
		return errors.New("test error")
	}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "test task", entry.Data["task"])
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "test error")
}

func TestSafeGo_Timeout(t *testing.T) {
	logger, hook := test.NewNullLogger()
	completed := atomic.Bool{}

	wait(t, SafeGo(context.Background(), logger, 50*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			completed.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))

	assert.False(t, completed.Load(), "function should have been canceled by timeout")
	require.NotNil(t, hook.LastEntry())
	assert.ErrorIs(t, hook.LastEntry().Data[logrus.ErrorKey].(error), context.DeadlineExceeded)
}

func TestSafeGo_NoTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	started := make(chan struct{})

	done := SafeGo(ctx, logger, 0, "watcher", func(ctx context.Context) error {
		close(started)
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	cancel()
	wait(t, done)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	logger, hook := test.NewNullLogger()

	assert.NotPanics(t, func() {
		wait(t, SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
			panic("test panic")
		}))
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Contains(t, entry.Message, "test panic")
	assert.NotEmpty(t, entry.Data["stack"])
}

func TestSafeGoNoError(t *testing.T) {
	executed := atomic.Bool{}

	wait(t, SafeGoNoError(context.Background(), nil, time.Second, "test task", func(ctx context.Context) {
		executed.Store(true)
	}))

	assert.True(t, executed.Load())
}

func TestRun_ConvertsPanic(t *testing.T) {
	err := Run(context.Background(), 0, func(ctx context.Context) error {
		panic("adapter exploded")
	})

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "adapter exploded", pe.Value)
	assert.EqualError(t, err, "panic: adapter exploded")
}
