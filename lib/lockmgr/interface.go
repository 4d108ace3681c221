package lockmgr

import (
	"context"
	"io"
	"time"
)

// ILockManager defines the interface for a named lock manager.
type ILockManager interface {
	// Acquire waits until the lock for name is free and returns a handle holding it.
	// Names are compared case-insensitively. Fails with an error matching ErrCanceled
	// if ctx is done before the lock is granted (also when it is already done on entry).
	Acquire(ctx context.Context, name string) (IHandle, error)

	// AcquireTimeout is Acquire with a context that expires after timeout.
	// A timeout <= 0 fails immediately.
	AcquireTimeout(name string, timeout time.Duration) (IHandle, error)

	// TryAcquire acquires the lock for name only if it is free right now.
	// Return the handle and true on success, nil and false otherwise.
	TryAcquire(name string) (IHandle, bool)

	// Len returns the number of names that currently have a live entry.
	Len() int
}

// IHandle is a held lock.
type IHandle interface {
	// Release gives the lock back. Calling it more than once is a no-op.
	Release()
}

// IMetricsWriter is implemented by lock managers that expose their metrics.
type IMetricsWriter interface {
	// WritePrometheus writes the manager's metrics in Prometheus text format.
	WritePrometheus(w io.Writer)
}
