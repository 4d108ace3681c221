// Package cmd implements the command-line interface for namedlock. The
// commands construct a lock manager from the configuration and exercise it.
//
// The package is organized into several subpackages:
//
//   - lock: Scenario commands (the three-caller timeout scenario, the shared counter stress run)
//   - perf: Benchmarks for contended, spread, try and timeout workloads plus a fairness run
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See namedlock -help for a list of all commands.
package cmd
