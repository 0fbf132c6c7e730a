package rbac

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Store holds the active policy and swaps it atomically on reload
type Store struct {
	current  atomic.Pointer[Policy]
	reloads  atomic.Int64
	onReload atomic.Pointer[func(error)]
}

// NewStore creates a store serving the given policy
func NewStore(initial *Policy) *Store {
	if initial == nil {
		initial = DefaultPolicy()
	}
	s := &Store{}
	s.current.Store(initial)
	return s
}

// Policy returns the active policy
func (s *Store) Policy() *Policy {
	return s.current.Load()
}

// Set replaces the active policy
func (s *Store) Set(p *Policy) {
	s.current.Store(p)
	s.reloads.Add(1)
}

// OnReload registers fn to be called after every watched reload attempt with its error,
// nil on success
func (s *Store) OnReload(fn func(error)) {
	s.onReload.Store(&fn)
}

func (s *Store) notifyReload(err error) {
	if fn := s.onReload.Load(); fn != nil && *fn != nil {
		(*fn)(err)
	}
}

// Reloads returns how many times the policy has been replaced
func (s *Store) Reloads() int64 {
	return s.reloads.Load()
}

// Reload loads the policy file and activates it. The active policy is kept on error.
func (s *Store) Reload(path string) error {
	p, err := LoadPolicy(path)
	if err != nil {
		return err
	}
	s.Set(p)
	return nil
}

// Watch reloads the policy whenever the file changes. The watch is established before
// Watch returns; events are handled in the background until ctx is done.
func (s *Store) Watch(ctx context.Context, path string, logger logrus.FieldLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	// Watch the directory: editors and config maps replace files rather than writing them.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				err := s.Reload(target)
				s.notifyReload(err)
				if err != nil {
					logger.WithError(err).WithField("path", target).Warn("policy reload failed, keeping previous policy")
					continue
				}
				logger.WithField("path", target).Info("search visibility policy reloaded")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("policy watcher error")
			}
		}
	}()

	return nil
}
