package lockmgr

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// --------------------------------------------------------------------------
// Entry state
// --------------------------------------------------------------------------

type entryState int32

const (
	// entryLive: in the mapping, refcount was > 0 at the last observation
	entryLive entryState = iota
	// entryPendingRemoval: a release observed refcount zero, the removal
	// callback has not re-validated it under the mapping lock yet
	entryPendingRemoval
	// entryRemoved: deleted from the mapping and disposed (terminal)
	entryRemoved
)

func (s entryState) String() string {
	switch s {
	case entryLive:
		return "live"
	case entryPendingRemoval:
		return "pending-removal"
	case entryRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Resource entry
// --------------------------------------------------------------------------

// resourceEntry binds one folded name to its binary semaphore and the number
// of handles currently attached to it.
type resourceEntry struct {
	name   string
	sem    *semaphore.Weighted
	refs   atomic.Int64
	state  atomic.Int32
	onZero func(*resourceEntry)
}

func newResourceEntry(name string, onZero func(*resourceEntry)) *resourceEntry {
	return &resourceEntry{
		name:   name,
		sem:    semaphore.NewWeighted(1),
		onZero: onZero,
	}
}

// addRef takes a reference. Caller must hold the mapping lock.
func (e *resourceEntry) addRef() {
	if e.State() == entryRemoved {
		panic("lockmgr: addRef on removed entry " + e.name)
	}
	e.refs.Add(1)
	e.state.Store(int32(entryLive))
}

// wait blocks until the permit is granted or ctx is done. On error no
// permit is held.
func (e *resourceEntry) wait(ctx context.Context) error {
	return e.sem.Acquire(ctx, 1)
}

// tryWait takes the permit if it is free.
func (e *resourceEntry) tryWait() bool {
	return e.sem.TryAcquire(1)
}

// release returns the permit (only if acquired > 0) and drops the reference.
// The reference is always dropped, and reaching zero hands the entry to the
// removal callback.
func (e *resourceEntry) release(acquired int32) {
	if acquired > 0 {
		e.sem.Release(1)
	}

	n := e.refs.Add(-1)
	switch {
	case n < 0:
		panic("lockmgr: negative reference count for " + e.name)
	case n == 0:
		e.state.CompareAndSwap(int32(entryLive), int32(entryPendingRemoval))
		e.onZero(e)
	}
}

// dispose drops the semaphore. Only the removal callback calls this, with
// the mapping lock held and the entry already deleted from the mapping.
func (e *resourceEntry) dispose() {
	e.state.Store(int32(entryRemoved))
	e.sem = nil
}

// State returns the lifecycle state of the entry
func (e *resourceEntry) State() entryState {
	return entryState(e.state.Load())
}

// RefCount returns the number of attached handles
func (e *resourceEntry) RefCount() int64 {
	return e.refs.Load()
}
