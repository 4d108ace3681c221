package lockmgr

import "context"

// WithLock runs fn while holding the lock for name. The lock is released on
// every exit path of fn, panics included. If the lock cannot be acquired fn
// is not run and the acquire error is returned.
func WithLock(ctx context.Context, lm ILockManager, name string, fn func() error) error {
	h, err := lm.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer h.Release()

	return fn()
}
