package lockmgr

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

func newTestManager(t *testing.T, opts *Options) *lockMgrImpl {
	t.Helper()
	lm, ok := NewLockManager(opts).(*lockMgrImpl)
	if !ok {
		t.Fatalf("NewLockManager returned unexpected type")
	}
	return lm
}

// deferRemoval replaces the removal callback of the entry for key, so the
// test decides when the callback runs. Returns the entry and a channel
// that receives every zero observation.
func deferRemoval(t *testing.T, lm *lockMgrImpl, key string) (*resourceEntry, <-chan *resourceEntry) {
	t.Helper()
	lm.mu.Lock()
	defer lm.mu.Unlock()

	e, ok := lm.entries[key]
	if !ok {
		t.Fatalf("No entry for %q", key)
	}
	zero := make(chan *resourceEntry, 8)
	e.onZero = func(e *resourceEntry) { zero <- e }
	return e, zero
}

// TestRemovalRevalidates replays the race between a release observing zero
// and a new acquire attaching to the same entry before the callback runs
func TestRemovalRevalidates(t *testing.T) {
	lm := newTestManager(t, nil)

	h1, err := lm.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	e, zero := deferRemoval(t, lm, "REPORT.CSV")

	// h1 drops the last reference, callback is held back
	h1.Release()
	stale := <-zero
	if e.State() != entryPendingRemoval {
		t.Fatalf("Expected pending-removal, got %s", e.State())
	}

	// a new acquirer finds the entry still in the mapping
	h2, err := lm.Acquire(context.Background(), "Report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if e.State() != entryLive {
		t.Fatalf("Expected revived entry, got %s", e.State())
	}

	// the delayed callback must leave the revived entry alone
	lm.removeIfIdle(stale)
	if lm.Len() != 1 {
		t.Fatalf("Revived entry was removed")
	}
	if e.State() != entryLive {
		t.Fatalf("Expected live entry, got %s", e.State())
	}

	h2.Release()
	lm.removeIfIdle(<-zero)
	if lm.Len() != 0 {
		t.Fatalf("Idle entry was not removed")
	}
	if e.State() != entryRemoved {
		t.Fatalf("Expected removed entry, got %s", e.State())
	}

	// a third acquirer gets a fresh entry; a late duplicate callback for the
	// old entry must not delete it
	h3, err := lm.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	lm.removeIfIdle(stale)
	if lm.Len() != 1 {
		t.Fatalf("Stale callback removed a fresh entry")
	}

	lm.mu.Lock()
	fresh := lm.entries["REPORT.CSV"]
	lm.mu.Unlock()
	if fresh == e {
		t.Fatalf("Removed entry was reused")
	}

	h3.Release()
	if lm.Len() != 0 {
		t.Fatalf("Expected no entries, got %d", lm.Len())
	}
}

// TestRemovalRaceStress hammers acquire/release on one name while the
// removal callback races with new acquirers
func TestRemovalRaceStress(t *testing.T) {
	lm := newTestManager(t, nil)

	const workers = 16
	const rounds = 2000

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				h, err := lm.Acquire(context.Background(), "hot")
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				h.Release()
			}
		}()
	}
	wg.Wait()

	if lm.Len() != 0 {
		t.Fatalf("Expected no entries, got %d", lm.Len())
	}
}

func TestAcquireNilContext(t *testing.T) {
	lm := newTestManager(t, nil)

	//nolint:staticcheck // nil context on purpose
	_, err := lm.Acquire(nil, "report.csv")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument, got %v", err)
	}
	if lm.Len() != 0 {
		t.Fatalf("Expected no entries, got %d", lm.Len())
	}
}

func TestConcurrentDoubleRelease(t *testing.T) {
	lm := newTestManager(t, nil)

	h, err := lm.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()

	if lm.Len() != 0 {
		t.Fatalf("Expected no entries, got %d", lm.Len())
	}
	h2, ok := lm.TryAcquire("report.csv")
	if !ok {
		t.Fatalf("TryAcquire failed after release")
	}
	h2.Release()
}

func TestIgnoreCancellation(t *testing.T) {
	lm := newTestManager(t, &Options{Name: "debug", IgnoreCancellation: true})

	h, err := lm.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		waiter, err := lm.AcquireTimeout("report.csv", 10*time.Millisecond)
		if err == nil {
			waiter.Release()
		}
		done <- err
	}()

	// the timeout must not fire
	select {
	case err := <-done:
		t.Fatalf("Waiter returned while lock was held: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	h.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Waiter failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Waiter not granted after release")
	}

	if lm.Len() != 0 {
		t.Fatalf("Expected no entries, got %d", lm.Len())
	}
}

func TestMetrics(t *testing.T) {
	set := metrics.NewSet()
	lm := newTestManager(t, &Options{Name: "metrics", Metrics: set})

	h, err := lm.Acquire(context.Background(), "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, ok := lm.TryAcquire("report.csv"); ok {
		t.Fatalf("TryAcquire succeeded on held name")
	}
	if _, err := lm.AcquireTimeout("report.csv", time.Millisecond); err == nil {
		t.Fatalf("AcquireTimeout succeeded on held name")
	}

	var buf bytes.Buffer
	lm.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`namedlock_acquire_total{manager="metrics",result="ok"} 1`,
		`namedlock_acquire_total{manager="metrics",result="busy"} 1`,
		`namedlock_acquire_total{manager="metrics",result="canceled"} 1`,
		`namedlock_entries{manager="metrics"} 1`,
		`namedlock_entries_created_total{manager="metrics"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected metrics output to contain %s\n%s", want, out)
		}
	}

	h.Release()

	buf.Reset()
	lm.WritePrometheus(&buf)
	out = buf.String()
	for _, want := range []string{
		`namedlock_release_total{manager="metrics"} 1`,
		`namedlock_entries_removed_total{manager="metrics"} 1`,
		`namedlock_entries{manager="metrics"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected metrics output to contain %s\n%s", want, out)
		}
	}
}

func TestOptions(t *testing.T) {
	opts := (&Options{}).normalize()
	if opts.Name != defaultManagerName {
		t.Errorf("Expected default name, got %q", opts.Name)
	}
	if opts.Metrics == nil {
		t.Errorf("Expected a private metrics set")
	}

	s := DefaultOptions().String()
	for _, want := range []string{"LOCK MANAGER", "Detect Reentrancy", "Ignore Cancellation"} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected options string to contain %q", want)
		}
	}
}
