//go:build !deadlock

package lockmgr

import "sync"

// mutex guards the name mapping. Build with -tags deadlock to swap in an
// instrumented mutex that reports lock-order inversions and long waits.
type mutex = sync.Mutex
