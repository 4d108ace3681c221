// Package util provides small helpers shared by the namedlock commands.
//
// The package contains:
//   - statistics: Summary statistics and a fairness score, used to report how
//     evenly a lock was handed out across competing workers
package util
