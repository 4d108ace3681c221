package testing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/namedlock/lib/lockmgr"
)

// LockManagerFactory is a function that creates a new, empty lock manager
type LockManagerFactory func() lockmgr.ILockManager

// RunLockManagerTests runs a comprehensive test suite for an ILockManager implementation.
func RunLockManagerTests(t *testing.T, name string, factory LockManagerFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("AcquireRelease", func(t *testing.T) {
			testAcquireRelease(t, factory())
		})

		t.Run("MutualExclusion", func(t *testing.T) {
			testMutualExclusion(t, factory())
		})

		t.Run("Independence", func(t *testing.T) {
			testIndependence(t, factory())
		})

		t.Run("CanceledBeforeWait", func(t *testing.T) {
			testCanceledBeforeWait(t, factory())
		})

		t.Run("CanceledWhileWaiting", func(t *testing.T) {
			testCanceledWhileWaiting(t, factory())
		})

		t.Run("IdleEntriesRemoved", func(t *testing.T) {
			testIdleEntriesRemoved(t, factory())
		})

		t.Run("IdempotentRelease", func(t *testing.T) {
			testIdempotentRelease(t, factory())
		})

		t.Run("TimeoutAccuracy", func(t *testing.T) {
			testTimeoutAccuracy(t, factory())
		})

		t.Run("ZeroTimeout", func(t *testing.T) {
			testZeroTimeout(t, factory())
		})

		t.Run("CaseInsensitivity", func(t *testing.T) {
			testCaseInsensitivity(t, factory())
		})

		t.Run("InvalidUTF8Names", func(t *testing.T) {
			testInvalidUTF8Names(t, factory())
		})

		t.Run("TryAcquire", func(t *testing.T) {
			testTryAcquire(t, factory())
		})

		t.Run("WithLock", func(t *testing.T) {
			testWithLock(t, factory())
		})

		t.Run("ReportScenario", func(t *testing.T) {
			testReportScenario(t, factory())
		})

		t.Run("Stress", func(t *testing.T) {
			testStress(t, factory())
		})

		t.Run("Churn", func(t *testing.T) {
			testChurn(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireLen fails the test if the manager does not track exactly n entries
func requireLen(t testing.TB, locks lockmgr.ILockManager, n int) {
	t.Helper()
	if got := locks.Len(); got != n {
		t.Fatalf("Expected %d live entries, got %d", n, got)
	}
}

// requireCanceled fails the test if err is not a cancellation error
func requireCanceled(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected cancellation error, got nil")
	}
	if !errors.Is(err, lockmgr.ErrCanceled) {
		t.Fatalf("Expected error to match ErrCanceled, got %v", err)
	}
}

// acquireAsync starts Acquire in a goroutine and delivers the result on the returned channel
func acquireAsync(ctx context.Context, locks lockmgr.ILockManager, name string) <-chan acquireResult {
	ch := make(chan acquireResult, 1)
	go func() {
		h, err := locks.Acquire(ctx, name)
		ch <- acquireResult{h: h, err: err, at: time.Now()}
	}()
	return ch
}

type acquireResult struct {
	h   lockmgr.IHandle
	err error
	at  time.Time
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testAcquireRelease(t *testing.T, locks lockmgr.ILockManager) {
	ctx := context.Background()

	requireLen(t, locks, 0)

	h, err := locks.Acquire(ctx, "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	requireLen(t, locks, 1)

	h.Release()
	requireLen(t, locks, 0)

	// the empty name is a valid name
	h, err = locks.Acquire(ctx, "")
	if err != nil {
		t.Fatalf("Acquire of empty name failed: %v", err)
	}
	requireLen(t, locks, 1)
	h.Release()
	requireLen(t, locks, 0)
}

func testMutualExclusion(t *testing.T, locks lockmgr.ILockManager) {
	const workers = 50
	const rounds = 20

	var inside atomic.Int32
	var overlaps atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				h, err := locks.Acquire(context.Background(), "shared")
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				if inside.Add(1) != 1 {
					overlaps.Add(1)
				}
				time.Sleep(time.Microsecond)
				inside.Add(-1)
				h.Release()
			}
		}()
	}

	wg.Wait()

	if n := overlaps.Load(); n != 0 {
		t.Errorf("Detected %d overlapping critical sections", n)
	}
	requireLen(t, locks, 0)
}

func testIndependence(t *testing.T, locks lockmgr.ILockManager) {
	h1, err := locks.Acquire(context.Background(), "name-1")
	if err != nil {
		t.Fatalf("Acquire name-1 failed: %v", err)
	}
	defer h1.Release()

	// a different name must be granted while name-1 is held
	start := time.Now()
	h2, err := locks.AcquireTimeout("name-2", time.Second)
	if err != nil {
		t.Fatalf("Acquire name-2 blocked by name-1: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Acquire name-2 took %s, expected no blocking", elapsed)
	}
	requireLen(t, locks, 2)
	h2.Release()
	requireLen(t, locks, 1)
}

func testCanceledBeforeWait(t *testing.T, locks lockmgr.ILockManager) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// fails even though the name is free
	h, err := locks.Acquire(ctx, "report.csv")
	requireCanceled(t, err)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected error to match context.Canceled, got %v", err)
	}
	if h != nil {
		t.Errorf("Expected nil handle on failure")
	}

	// no phantom reference may be left behind
	requireLen(t, locks, 0)

	h, err = locks.AcquireTimeout("report.csv", time.Second)
	if err != nil {
		t.Fatalf("Acquire after canceled acquire failed: %v", err)
	}
	h.Release()
	requireLen(t, locks, 0)
}

func testCanceledWhileWaiting(t *testing.T, locks lockmgr.ILockManager) {
	holder, err := locks.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := acquireAsync(ctx, locks, "report.csv")

	// give the waiter a chance to queue up
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case r := <-result:
		requireCanceled(t, r.err)
	case <-time.After(time.Second):
		t.Fatalf("Waiter was not unblocked by cancellation")
	}

	// the canceled waiter must not keep the entry alive or steal the permit
	requireLen(t, locks, 1)
	if h, ok := locks.TryAcquire("report.csv"); ok {
		h.Release()
		t.Fatalf("Permit was granted while the holder still holds it")
	}

	holder.Release()
	requireLen(t, locks, 0)

	h, ok := locks.TryAcquire("report.csv")
	if !ok {
		t.Fatalf("TryAcquire failed after holder released")
	}
	h.Release()
	requireLen(t, locks, 0)
}

func testIdleEntriesRemoved(t *testing.T, locks lockmgr.ILockManager) {
	const names = 100

	handles := make([]lockmgr.IHandle, 0, names)
	for i := 0; i < names; i++ {
		h, err := locks.Acquire(context.Background(), fmt.Sprintf("file-%d", i))
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		handles = append(handles, h)
	}
	requireLen(t, locks, names)

	for i, h := range handles {
		h.Release()
		requireLen(t, locks, names-i-1)
	}

	// entry stays while a waiter is attached, goes once the waiter is done
	h, _ := locks.Acquire(context.Background(), "busy")
	result := acquireAsync(context.Background(), locks, "busy")
	time.Sleep(10 * time.Millisecond)
	h.Release()
	requireLen(t, locks, 1)

	r := <-result
	if r.err != nil {
		t.Fatalf("Waiter failed: %v", r.err)
	}
	requireLen(t, locks, 1)
	r.h.Release()
	requireLen(t, locks, 0)
}

func testIdempotentRelease(t *testing.T, locks lockmgr.ILockManager) {
	h1, err := locks.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// a second holder queues behind h1
	result := acquireAsync(context.Background(), locks, "report.csv")
	time.Sleep(10 * time.Millisecond)

	h1.Release()
	h1.Release()

	r := <-result
	if r.err != nil {
		t.Fatalf("Waiter failed: %v", r.err)
	}

	// a double release of h1 must not have freed a second permit
	if h, ok := locks.TryAcquire("report.csv"); ok {
		h.Release()
		t.Fatalf("Double release granted an extra permit")
	}
	requireLen(t, locks, 1)

	r.h.Release()
	r.h.Release()
	requireLen(t, locks, 0)

	h3, err := locks.AcquireTimeout("report.csv", time.Second)
	if err != nil {
		t.Fatalf("Acquire after double release failed: %v", err)
	}
	h3.Release()
	requireLen(t, locks, 0)
}

func testTimeoutAccuracy(t *testing.T, locks lockmgr.ILockManager) {
	const timeout = 50 * time.Millisecond

	h, err := locks.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer h.Release()

	start := time.Now()
	_, err = locks.AcquireTimeout("report.csv", timeout)
	elapsed := time.Since(start)

	requireCanceled(t, err)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected error to match context.DeadlineExceeded, got %v", err)
	}
	if elapsed < timeout {
		t.Errorf("AcquireTimeout returned after %s, before the %s timeout", elapsed, timeout)
	}
	if elapsed > timeout+time.Second {
		t.Errorf("AcquireTimeout returned after %s, long after the %s timeout", elapsed, timeout)
	}
	requireLen(t, locks, 1)
}

func testZeroTimeout(t *testing.T, locks lockmgr.ILockManager) {
	_, err := locks.AcquireTimeout("report.csv", 0)
	requireCanceled(t, err)

	_, err = locks.AcquireTimeout("report.csv", -time.Second)
	requireCanceled(t, err)

	requireLen(t, locks, 0)
}

func testCaseInsensitivity(t *testing.T, locks lockmgr.ILockManager) {
	h, err := locks.Acquire(context.Background(), "File.txt")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if other, ok := locks.TryAcquire("file.txt"); ok {
		other.Release()
		t.Fatalf("file.txt was granted while File.txt is held")
	}
	_, err = locks.AcquireTimeout("FILE.TXT", 20*time.Millisecond)
	requireCanceled(t, err)
	requireLen(t, locks, 1)

	h.Release()
	requireLen(t, locks, 0)
}

// testInvalidUTF8Names checks that names with different invalid bytes, and
// the replacement character itself, are separate locks
func testInvalidUTF8Names(t *testing.T, locks lockmgr.ILockManager) {
	names := []string{"data-\xff.bin", "data-\xfe.bin", "data-\uFFFD.bin"}

	handles := make([]lockmgr.IHandle, 0, len(names))
	for _, name := range names {
		h, ok := locks.TryAcquire(name)
		if !ok {
			t.Fatalf("TryAcquire %q failed while %d other names are held", name, len(handles))
		}
		handles = append(handles, h)
	}
	requireLen(t, locks, len(names))

	// invalid bytes still fold with the letters around them
	if h, ok := locks.TryAcquire("DATA-\xff.BIN"); ok {
		h.Release()
		t.Fatalf("DATA-\\xff.BIN was granted while data-\\xff.bin is held")
	}

	for _, h := range handles {
		h.Release()
	}
	requireLen(t, locks, 0)
}

func testTryAcquire(t *testing.T, locks lockmgr.ILockManager) {
	h, ok := locks.TryAcquire("report.csv")
	if !ok {
		t.Fatalf("TryAcquire on a free name failed")
	}
	requireLen(t, locks, 1)

	if _, ok := locks.TryAcquire("report.csv"); ok {
		t.Fatalf("TryAcquire on a held name succeeded")
	}
	requireLen(t, locks, 1)

	h.Release()
	requireLen(t, locks, 0)
}

func testWithLock(t *testing.T, locks lockmgr.ILockManager) {
	fnErr := errors.New("fn failed")

	err := lockmgr.WithLock(context.Background(), locks, "report.csv", func() error {
		requireLen(t, locks, 1)
		if _, ok := locks.TryAcquire("report.csv"); ok {
			t.Errorf("Lock not held inside WithLock")
		}
		return fnErr
	})
	if !errors.Is(err, fnErr) {
		t.Errorf("Expected fn error, got %v", err)
	}
	requireLen(t, locks, 0)

	// not run when the lock cannot be acquired
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err = lockmgr.WithLock(ctx, locks, "report.csv", func() error {
		ran = true
		return nil
	})
	requireCanceled(t, err)
	if ran {
		t.Errorf("fn ran without the lock")
	}
	requireLen(t, locks, 0)
}

// testReportScenario: A holds report.csv for 100ms, B gives up after 50ms,
// C waits up to 200ms and gets it once A is done.
func testReportScenario(t *testing.T, locks lockmgr.ILockManager) {
	const hold = 100 * time.Millisecond

	start := time.Now()
	a, err := locks.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("A: Acquire failed: %v", err)
	}

	type outcome struct {
		h       lockmgr.IHandle
		err     error
		elapsed time.Duration
	}
	acquire := func(timeout time.Duration) <-chan outcome {
		ch := make(chan outcome, 1)
		go func() {
			h, err := locks.AcquireTimeout("report.csv", timeout)
			ch <- outcome{h: h, err: err, elapsed: time.Since(start)}
		}()
		return ch
	}

	b := acquire(50 * time.Millisecond)
	c := acquire(200 * time.Millisecond)

	time.Sleep(hold)
	released := time.Since(start)
	a.Release()

	bRes := <-b
	requireCanceled(t, bRes.err)
	if bRes.elapsed < 50*time.Millisecond {
		t.Errorf("B: failed after %s, before its 50ms timeout", bRes.elapsed)
	}

	cRes := <-c
	if cRes.err != nil {
		t.Fatalf("C: Acquire failed: %v", cRes.err)
	}
	if cRes.elapsed < released {
		t.Errorf("C: acquired after %s, before A released at %s", cRes.elapsed, released)
	}
	cRes.h.Release()

	requireLen(t, locks, 0)
}

// testStress: concurrent callers increment a plain int under the same name
func testStress(t *testing.T, locks lockmgr.ILockManager) {
	const callers = 100

	counter := 0
	var wg sync.WaitGroup
	wg.Add(callers)

	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			err := lockmgr.WithLock(context.Background(), locks, "counter", func() error {
				v := counter
				time.Sleep(10 * time.Microsecond)
				counter = v + 1
				return nil
			})
			if err != nil {
				t.Errorf("WithLock failed: %v", err)
			}
		}()
	}

	wg.Wait()

	if counter != callers {
		t.Errorf("Expected counter %d, got %d", callers, counter)
	}
	requireLen(t, locks, 0)
}

// testChurn mixes acquires, cancellations and releases over a few names and
// checks that every entry is gone afterward
func testChurn(t *testing.T, locks lockmgr.ILockManager) {
	const workers = 32
	const rounds = 200
	const names = 4

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for i := 0; i < rounds; i++ {
				name := fmt.Sprintf("Name-%d", rng.Intn(names))
				if rng.Intn(2) == 0 {
					name = fmt.Sprintf("name-%d", rng.Intn(names))
				}

				switch rng.Intn(3) {
				case 0:
					h, err := locks.AcquireTimeout(name, time.Duration(rng.Intn(200))*time.Microsecond)
					if err == nil {
						h.Release()
					} else if !errors.Is(err, lockmgr.ErrCanceled) {
						t.Errorf("Unexpected error: %v", err)
					}
				case 1:
					if h, ok := locks.TryAcquire(name); ok {
						h.Release()
					}
				default:
					h, err := locks.Acquire(context.Background(), name)
					if err != nil {
						t.Errorf("Acquire failed: %v", err)
						continue
					}
					h.Release()
					h.Release()
				}
			}
		}(int64(w))
	}

	wg.Wait()
	requireLen(t, locks, 0)
}
