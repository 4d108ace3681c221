package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/namedlock/lib/lockmgr"
)

// RunLockManagerBenchmarks runs all benchmarks for a lock manager implementation
func RunLockManagerBenchmarks(b *testing.B, name string, factory LockManagerFactory) {

	b.Run("Uncontended", func(b *testing.B) {
		benchmarkUncontended(b, factory())
	})

	b.Run("Contended", func(b *testing.B) {
		benchmarkContended(b, factory())
	})

	b.Run("Spread", func(b *testing.B) {
		benchmarkSpread(b, factory())
	})

	b.Run("TryAcquire", func(b *testing.B) {
		benchmarkTryAcquire(b, factory())
	})

	b.Run("Timeout", func(b *testing.B) {
		benchmarkTimeout(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Acquire/Release on one name from one goroutine
func benchmarkUncontended(b *testing.B, locks lockmgr.ILockManager) {
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := locks.Acquire(ctx, "bench-key")
		if err != nil {
			b.Fatalf("Acquire failed: %v", err)
		}
		h.Release()
	}
}

// Benchmark for Acquire/Release on one name from all goroutines
func benchmarkContended(b *testing.B, locks lockmgr.ILockManager) {
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			h, err := locks.Acquire(ctx, "bench-key")
			if err != nil {
				b.Errorf("Acquire failed: %v", err)
				return
			}
			h.Release()
		}
	})
}

// Benchmark for Acquire/Release spread over many names
func benchmarkSpread(b *testing.B, locks lockmgr.ILockManager) {
	ctx := context.Background()

	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = fmt.Sprintf("bench-key-%d", i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			h, err := locks.Acquire(ctx, keys[counter%len(keys)])
			if err != nil {
				b.Errorf("Acquire failed: %v", err)
				return
			}
			h.Release()
			counter++
		}
	})
}

// Benchmark for TryAcquire on one name from all goroutines
func benchmarkTryAcquire(b *testing.B, locks lockmgr.ILockManager) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if h, ok := locks.TryAcquire("bench-key"); ok {
				h.Release()
			}
		}
	})
}

// Benchmark for AcquireTimeout with short timeouts under contention
func benchmarkTimeout(b *testing.B, locks lockmgr.ILockManager) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if h, err := locks.AcquireTimeout("bench-key", 50*time.Microsecond); err == nil {
				h.Release()
			}
		}
	})
}
