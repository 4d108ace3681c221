package lockmgr

import (
	"context"
	"sync/atomic"
)

// handle is the caller side of one Acquire call.
//
// Lifecycle: constructed (reference held, no permit) -> acquired (permit held)
// -> released. A failed wait goes straight from constructed to released.
type handle struct {
	mgr      *lockMgrImpl
	name     string
	entry    atomic.Pointer[resourceEntry]
	acquired atomic.Int32
	holder   *holder
}

// newHandle binds a handle to e and takes a reference on it.
// Caller must hold the mapping lock.
func newHandle(mgr *lockMgrImpl, name string, e *resourceEntry) *handle {
	h := &handle{mgr: mgr, name: name}
	h.entry.Store(e)
	e.addRef()
	return h
}

// wait blocks until the entry's permit is granted or ctx is done
func (h *handle) wait(ctx context.Context) error {
	e := h.entry.Load()
	if err := e.wait(ctx); err != nil {
		return err
	}
	h.acquired.Store(1)
	return nil
}

// tryWait takes the entry's permit without blocking
func (h *handle) tryWait() bool {
	if !h.entry.Load().tryWait() {
		return false
	}
	h.acquired.Store(1)
	return true
}

// track registers the held name with the reentrancy holder
func (h *handle) track(hl *holder) {
	h.holder = hl
	hl.add(h.mgr.holderKey(h.entry.Load().name))
}

// Release returns the permit (if it was granted) and the reference. Only the
// first call has an effect.
func (h *handle) Release() {
	e := h.entry.Swap(nil)
	if e == nil {
		return
	}

	if h.holder != nil {
		h.holder.remove(h.mgr.holderKey(e.name))
	}

	acquired := h.acquired.Swap(0)
	if acquired > 0 {
		h.mgr.metrics.releases.Inc()
	}
	e.release(acquired)
}
