// Package testing provides standardised tests and benchmarks for
// lock manager implementations that satisfy the lockmgr.ILockManager interface.
//
// The package contains:
//   - testing: A test suite for mutual exclusion, cancellation, idle entry removal,
//     idempotent release, timeouts and case-insensitive names
//   - benchmark: Performance tests for contended and uncontended lock usage
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() lockmgr.ILockManager {
//		return NewMyLockManager()
//	}
//
//	// Running the standard test suite
//	lmtesting.RunLockManagerTests(t, "MyLockManager", factory)
//
//	// Running performance benchmarks
//	lmtesting.RunLockManagerBenchmarks(b, "MyLockManager", factory)
package testing
