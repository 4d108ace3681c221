package lockmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWithHolder(t *testing.T) {
	ctx := context.Background()
	if _, ok := HolderID(ctx); ok {
		t.Fatalf("Plain context has a holder")
	}

	hctx := WithHolder(ctx)
	id, ok := HolderID(hctx)
	if !ok || id == "" {
		t.Fatalf("Expected holder id, got %q", id)
	}

	// idempotent on the same chain
	again, _ := HolderID(WithHolder(hctx))
	if again != id {
		t.Errorf("Expected holder id %q, got %q", id, again)
	}

	other, _ := HolderID(WithHolder(ctx))
	if other == id {
		t.Errorf("Two holders share id %q", id)
	}
}

func TestWithNewHolder(t *testing.T) {
	parent := WithHolder(context.Background())
	parentID, _ := HolderID(parent)

	child := WithNewHolder(parent)
	childID, ok := HolderID(child)
	if !ok || childID == "" {
		t.Fatalf("Expected holder id on child context, got %q", childID)
	}
	if childID == parentID {
		t.Errorf("Child shares holder id %q with parent", childID)
	}

	// WithHolder keeps the forked holder
	if again, _ := HolderID(WithHolder(child)); again != childID {
		t.Errorf("Expected holder id %q, got %q", childID, again)
	}
}

func TestDetectReentrancyForkedGoroutines(t *testing.T) {
	lm := newTestManager(t, &Options{Name: "forked", DetectReentrancy: true})
	ctx := WithHolder(context.Background())

	const workers = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(ctx context.Context) {
			defer wg.Done()
			h, err := lm.Acquire(ctx, "report.csv")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			overlap = overlap || inside > 1
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			h.Release()
		}(WithNewHolder(ctx))
	}
	wg.Wait()

	if overlap {
		t.Errorf("Two goroutines held report.csv at once")
	}
	if lm.Len() != 0 {
		t.Fatalf("Expected no entries, got %d", lm.Len())
	}
}

func TestDetectReentrancySkipsTryAcquire(t *testing.T) {
	lm := newTestManager(t, &Options{DetectReentrancy: true})
	ctx := WithHolder(context.Background())

	h, ok := lm.TryAcquire("report.csv")
	if !ok {
		t.Fatalf("TryAcquire failed")
	}
	defer h.Release()

	// TryAcquire does not record the name, so this waits instead of failing fast
	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := lm.Acquire(tctx, "report.csv")
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Expected ErrCanceled, got %v", err)
	}
}

func TestDetectReentrancy(t *testing.T) {
	lm := newTestManager(t, &Options{Name: "reentrant", DetectReentrancy: true})
	ctx := WithHolder(context.Background())

	h, err := lm.Acquire(ctx, "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// nested acquire of the same name (any case) fails fast
	_, err = lm.Acquire(ctx, "REPORT.csv")
	if !errors.Is(err, ErrReentrant) {
		t.Fatalf("Expected ErrReentrant, got %v", err)
	}
	if lm.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", lm.Len())
	}

	// other names are fine for the same holder
	h2, err := lm.Acquire(ctx, "other.csv")
	if err != nil {
		t.Fatalf("Acquire of other name failed: %v", err)
	}
	h2.Release()

	// a different holder waits as usual
	_, err = lm.AcquireTimeout("report.csv", 10*time.Millisecond)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Expected ErrCanceled, got %v", err)
	}

	h.Release()

	// released names can be acquired again
	h, err = lm.Acquire(ctx, "report.csv")
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	h.Release()

	if lm.Len() != 0 {
		t.Fatalf("Expected no entries, got %d", lm.Len())
	}
}

func TestDetectReentrancyScopedToManager(t *testing.T) {
	opts := &Options{DetectReentrancy: true}
	lm1 := newTestManager(t, opts)
	lm2 := newTestManager(t, opts)
	ctx := WithHolder(context.Background())

	h1, err := lm1.Acquire(ctx, "report.csv")
	if err != nil {
		t.Fatalf("Acquire on first manager failed: %v", err)
	}
	defer h1.Release()

	// the same name on another manager is a different lock
	h2, err := lm2.Acquire(ctx, "report.csv")
	if err != nil {
		t.Fatalf("Acquire on second manager failed: %v", err)
	}
	h2.Release()
}

func TestDetectReentrancyDisabled(t *testing.T) {
	lm := newTestManager(t, nil)
	ctx := WithHolder(context.Background())

	h, err := lm.Acquire(ctx, "report.csv")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer h.Release()

	// without detection a nested acquire just waits
	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = lm.Acquire(tctx, "report.csv")
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Expected ErrCanceled, got %v", err)
	}
}
