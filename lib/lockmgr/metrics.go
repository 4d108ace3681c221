package lockmgr

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Acquire outcomes used as metric label values
const (
	resultOK        = "ok"
	resultCanceled  = "canceled"
	resultBusy      = "busy"
	resultReentrant = "reentrant"
)

// lockMetrics bundles the metrics one manager reports into its metrics.Set
type lockMetrics struct {
	set *metrics.Set

	acquireOK        *metrics.Counter
	acquireCanceled  *metrics.Counter
	acquireBusy      *metrics.Counter
	acquireReentrant *metrics.Counter
	releases         *metrics.Counter
	entriesCreated   *metrics.Counter
	entriesRemoved   *metrics.Counter
	waitDuration     *metrics.Histogram
}

func newLockMetrics(set *metrics.Set, manager string, liveEntries func() int) *lockMetrics {
	acquire := func(result string) *metrics.Counter {
		return set.GetOrCreateCounter(fmt.Sprintf(`namedlock_acquire_total{manager=%q,result=%q}`, manager, result))
	}

	// the gauge callback of the first manager registered under this label wins
	set.GetOrCreateGauge(fmt.Sprintf(`namedlock_entries{manager=%q}`, manager), func() float64 {
		return float64(liveEntries())
	})

	return &lockMetrics{
		set:              set,
		acquireOK:        acquire(resultOK),
		acquireCanceled:  acquire(resultCanceled),
		acquireBusy:      acquire(resultBusy),
		acquireReentrant: acquire(resultReentrant),
		releases:         set.GetOrCreateCounter(fmt.Sprintf(`namedlock_release_total{manager=%q}`, manager)),
		entriesCreated:   set.GetOrCreateCounter(fmt.Sprintf(`namedlock_entries_created_total{manager=%q}`, manager)),
		entriesRemoved:   set.GetOrCreateCounter(fmt.Sprintf(`namedlock_entries_removed_total{manager=%q}`, manager)),
		waitDuration:     set.GetOrCreateHistogram(fmt.Sprintf(`namedlock_wait_duration_seconds{manager=%q}`, manager)),
	}
}

// observeWait records the time spent waiting for a permit
func (m *lockMetrics) observeWait(start time.Time) {
	m.waitDuration.UpdateDuration(start)
}
