package lockmgr

import (
	"fmt"
	"strings"

	"github.com/VictoriaMetrics/metrics"
)

const (
	defaultManagerName = "default"
)

// Options configures the lock manager behavior during initialization
type Options struct {
	// Name labels the manager in logs and metrics (empty = "default")
	Name string

	// IgnoreCancellation suppresses externally supplied cancellation signals
	// and timeouts while waiting for a permit. Development only: a waiter with
	// this flag set waits until the permit is granted, no matter what.
	IgnoreCancellation bool

	// DetectReentrancy makes Acquire fail with ErrReentrant instead of
	// deadlocking when the context carries a holder (see WithHolder) that
	// already holds the requested name. Only names taken with Acquire on a
	// holder context are recorded. TryAcquire and AcquireTimeout carry no
	// holder, so acquiring a name they took again on the same chain still
	// deadlocks.
	DetectReentrancy bool

	// Metrics is the set the manager registers its metrics in (nil = private set)
	Metrics *metrics.Set
}

// DefaultOptions returns the default lock manager options
func DefaultOptions() *Options {
	return &Options{
		Name:               defaultManagerName,
		IgnoreCancellation: false,
		DetectReentrancy:   false,
	}
}

// String returns a formatted string representation of the options
func (o *Options) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Lock Manager")
	addField("Name", o.Name)
	addField("Detect Reentrancy", fmt.Sprintf("%t", o.DetectReentrancy))
	addField("Ignore Cancellation", fmt.Sprintf("%t", o.IgnoreCancellation))
	addField("Shared Metrics Set", fmt.Sprintf("%t", o.Metrics != nil))

	return sb.String()
}

// normalize fills in defaults for unset fields
func (o *Options) normalize() *Options {
	n := *o
	if n.Name == "" {
		n.Name = defaultManagerName
	}
	if n.Metrics == nil {
		n.Metrics = metrics.NewSet()
	}
	return &n
}
