// Package async runs background work with panic recovery and structured logging.
//
// SafeGo starts fn in its own goroutine, optionally bounded by a timeout, and
// logs whatever it returns. Run gives the same guarantees synchronously, which is
// what the search fan-out uses to keep one adapter's panic from taking down the
// request.
//
//	done := async.SafeGo(ctx, logger, 0, "policy watcher", func(ctx context.Context) error {
//		return store.Watch(ctx, path)
//	})
//	<-done
package async
