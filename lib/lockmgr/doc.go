// Package lockmgr implements in-process mutual exclusion keyed by an
// arbitrary name (a file path, an account id, ...). Callers never declare
// locks up front: they ask for a name and get back a handle that holds the
// lock until it is released.
//
// Core Functionality:
//   - Acquire with context cancellation, AcquireTimeout, non-blocking TryAcquire
//   - Case-insensitive names ("File.txt" and "file.txt" are the same lock)
//   - Idle names are dropped from the internal mapping, so it stays small
//   - Idempotent release
//
// Implementation Approach:
//
//	The manager maps the folded name to an entry holding a binary semaphore
//	(golang.org/x/sync/semaphore, weight 1) and a reference count of the
//	handles attached to it. A single mapping mutex guards the map.
//
//	- Acquire: under the mapping mutex the entry is found or created and the
//	  new handle takes a reference. The wait for the semaphore happens after
//	  the mutex is released, so waiting goroutines never block the mapping.
//
//	- Release: the permit is given back (only if it was granted) and the
//	  reference is dropped. The release that brings the count to zero calls
//	  the manager's removal callback.
//
//	- Removal: the callback takes the mapping mutex and checks the count
//	  again. A concurrent Acquire may have attached a new handle between the
//	  zero observation and the callback; in that case the entry stays. Only
//	  an entry that is still unreferenced under the mutex is removed.
//
//	Entry states: live -> pending-removal -> removed. Only the removal
//	callback (under the mapping mutex) moves an entry to removed.
//
// Cancellation:
//
//	A failed or cancelled wait releases the handle's reference before the
//	error is returned, and never leaves a permit behind. The error matches
//	ErrCanceled and the context cause via errors.Is. Once the permit is
//	granted cancellation has no effect; only Release gives it back.
//
// Reentrancy:
//
//	Acquiring a name that the same call chain already holds deadlocks. With
//	Options.DetectReentrancy and a context prepared by WithHolder, Acquire
//	fails with ErrReentrant instead. A holder identifies one goroutine: pass
//	WithNewHolder(ctx) to every goroutine you start, so concurrent siblings
//	wait for each other instead of being reported as reentrant. Names taken
//	with TryAcquire or AcquireTimeout are not recorded for any holder.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager(nil)
//
//	h, err := locks.Acquire(ctx, "/var/data/report.csv")
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
//	// or, scoped:
//	err = lockmgr.WithLock(ctx, locks, "account:42", func() error {
//	    return transfer(42)
//	})
//
// Debugging:
//
//	Options.IgnoreCancellation makes waits ignore cancellation and timeouts,
//	which keeps locks from timing out while stepping through code in a
//	debugger. It must stay off in production. Building with -tags deadlock
//	replaces the mapping mutex with github.com/sasha-s/go-deadlock.
package lockmgr
