package lockmgr

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	opts    *Options
	id      string
	metrics *lockMetrics

	mu      mutex
	entries map[string]*resourceEntry
}

// NewLockManager creates a new lock manager with the specified options (optional)
func NewLockManager(opts *Options) ILockManager {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.normalize()

	lm := &lockMgrImpl{
		opts:    opts,
		id:      generateHolderID(),
		entries: make(map[string]*resourceEntry),
	}
	lm.metrics = newLockMetrics(opts.Metrics, opts.Name, lm.Len)

	if opts.IgnoreCancellation {
		log.Warningf("lock manager %q ignores cancellation and timeouts, do not use this in production", opts.Name)
	}
	log.Infof("lock manager %q created (detect reentrancy: %t)", opts.Name, opts.DetectReentrancy)

	return lm
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) Acquire(ctx context.Context, name string) (IHandle, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidArgument)
	}

	// Fail fast instead of deadlocking on a name this call chain already holds
	var hl *holder
	if lm.opts.DetectReentrancy {
		hl = holderFrom(ctx)
		if hl != nil && hl.holds(lm.holderKey(foldName(name))) {
			lm.metrics.acquireReentrant.Inc()
			return nil, fmt.Errorf("%w: holder %s already holds %q", ErrReentrant, hl.id, name)
		}
	}

	h := lm.attach(name)

	waitCtx := ctx
	if lm.opts.IgnoreCancellation {
		waitCtx = context.WithoutCancel(ctx)
	}

	// Wait outside the mapping lock
	start := time.Now()
	if err := h.wait(waitCtx); err != nil {
		h.Release()
		lm.metrics.acquireCanceled.Inc()
		log.Debugf("wait for %q canceled after %s: %v", name, time.Since(start), err)
		return nil, newCanceledError(name, err)
	}
	lm.metrics.observeWait(start)
	lm.metrics.acquireOK.Inc()

	if hl != nil {
		h.track(hl)
	}
	return h, nil
}

func (lm *lockMgrImpl) AcquireTimeout(name string, timeout time.Duration) (IHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return lm.Acquire(ctx, name)
}

func (lm *lockMgrImpl) TryAcquire(name string) (IHandle, bool) {
	h := lm.attach(name)
	if !h.tryWait() {
		h.Release()
		lm.metrics.acquireBusy.Inc()
		return nil, false
	}
	lm.metrics.acquireOK.Inc()
	return h, true
}

func (lm *lockMgrImpl) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.entries)
}

func (lm *lockMgrImpl) WritePrometheus(w io.Writer) {
	lm.metrics.set.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Entry lifecycle
// --------------------------------------------------------------------------

// attach finds or creates the entry for name and binds a new handle to it.
// The reference is taken while the mapping lock is held, so removeIfIdle
// can never delete an entry a new handle is about to use.
func (lm *lockMgrImpl) attach(name string) *handle {
	key := foldName(name)

	lm.mu.Lock()
	defer lm.mu.Unlock()

	e, ok := lm.entries[key]
	if !ok {
		e = newResourceEntry(key, lm.removeIfIdle)
		lm.entries[key] = e
		lm.metrics.entriesCreated.Inc()
		log.Debugf("entry %q created", key)
	}
	return newHandle(lm, name, e)
}

// removeIfIdle is the removal callback of every entry. It runs after a
// release observed a zero refcount and re-validates that under the mapping
// lock: a concurrent attach may have revived the entry in the meantime.
func (lm *lockMgrImpl) removeIfIdle(e *resourceEntry) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	// Another release already removed it
	if e.State() == entryRemoved {
		return
	}

	// Revived by a concurrent attach
	if e.RefCount() > 0 {
		e.state.CompareAndSwap(int32(entryPendingRemoval), int32(entryLive))
		return
	}

	if cur, ok := lm.entries[e.name]; ok && cur == e {
		delete(lm.entries, e.name)
		lm.metrics.entriesRemoved.Inc()
		log.Debugf("entry %q removed", e.name)
	}
	e.dispose()
}

// holderKey scopes a folded name to this manager for reentrancy tracking
func (lm *lockMgrImpl) holderKey(key string) string {
	return lm.id + "/" + key
}
