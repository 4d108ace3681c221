package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/namedlock/cmd/util"
	"github.com/ValentinKolb/namedlock/lib/lockmgr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	locks lockmgr.ILockManager

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Run lock manager scenarios",
	}

	// scenarioCmd represents the scenario command
	scenarioCmd = &cobra.Command{
		Use:   "scenario",
		Short: "Run the three-caller timeout scenario",
		Long: util.WrapString(`Caller A acquires a name and holds it. Caller B asks for the same name with a timeout shorter than A's hold time and must give up.
Caller C asks with a timeout longer than A's hold time and must get the lock once A releases it.`),
		PreRunE: setupLockManager,
		RunE:    runScenario,
	}

	// stressCmd represents the stress command
	stressCmd = &cobra.Command{
		Use:     "stress",
		Short:   "Increment a shared counter from many goroutines under one name",
		PreRunE: setupLockManager,
		RunE:    runStress,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(scenarioCmd)
	LockCommands.AddCommand(stressCmd)

	key := "name"
	LockCommands.PersistentFlags().String(key, "report.csv", util.WrapString("Name of the lock to contend on"))

	key = "hold"
	scenarioCmd.Flags().Duration(key, 100*time.Millisecond, util.WrapString("How long caller A holds the lock"))
	key = "short-timeout"
	scenarioCmd.Flags().Duration(key, 50*time.Millisecond, util.WrapString("Timeout of caller B"))
	key = "long-timeout"
	scenarioCmd.Flags().Duration(key, 200*time.Millisecond, util.WrapString("Timeout of caller C"))

	key = "callers"
	stressCmd.Flags().Int(key, 100, util.WrapString("Number of concurrent callers"))
}

// setupLockManager creates the lock manager from the configuration
func setupLockManager(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	locks = lockmgr.NewLockManager(util.GetManagerOptions(nil))
	return nil
}

// runScenario handles the scenario command
func runScenario(cmd *cobra.Command, _ []string) error {
	return scenario(cmd.OutOrStdout(), locks, viper.GetString("name"),
		viper.GetDuration("hold"),
		viper.GetDuration("short-timeout"),
		viper.GetDuration("long-timeout"),
	)
}

// runStress handles the stress command
func runStress(cmd *cobra.Command, _ []string) error {
	return stress(cmd.OutOrStdout(), locks, viper.GetString("name"), viper.GetInt("callers"))
}

// --------------------------------------------------------------------------
// Scenarios
// --------------------------------------------------------------------------

type callerResult struct {
	caller  string
	h       lockmgr.IHandle
	err     error
	elapsed time.Duration
}

func (r callerResult) String() string {
	if r.err != nil {
		return fmt.Sprintf("%s: failed after %s (%v)", r.caller, r.elapsed.Round(time.Millisecond), r.err)
	}
	return fmt.Sprintf("%s: acquired after %s", r.caller, r.elapsed.Round(time.Millisecond))
}

// scenario runs caller A (holds for hold), B (gives up after short) and
// C (waits up to long). It fails if B gets the lock or C does not.
func scenario(w io.Writer, locks lockmgr.ILockManager, name string, hold, short, long time.Duration) error {
	if short >= hold || long <= hold {
		return fmt.Errorf("timeouts must satisfy short (%s) < hold (%s) < long (%s)", short, hold, long)
	}

	start := time.Now()
	a, err := locks.Acquire(context.Background(), name)
	if err != nil {
		return fmt.Errorf("caller A failed to acquire %q: %v", name, err)
	}
	fmt.Fprintln(w, callerResult{caller: "A", elapsed: time.Since(start)})

	results := make(chan callerResult, 2)
	for caller, timeout := range map[string]time.Duration{"B": short, "C": long} {
		go func(caller string, timeout time.Duration) {
			h, err := locks.AcquireTimeout(name, timeout)
			results <- callerResult{caller: caller, h: h, err: err, elapsed: time.Since(start)}
		}(caller, timeout)
	}

	time.Sleep(hold)
	a.Release()
	fmt.Fprintf(w, "A: released after %s\n", time.Since(start).Round(time.Millisecond))

	var failures []error
	for i := 0; i < 2; i++ {
		r := <-results
		fmt.Fprintln(w, r)

		switch r.caller {
		case "B":
			if r.err == nil {
				r.h.Release()
				failures = append(failures, errors.New("caller B acquired the lock while A held it"))
			} else if !errors.Is(r.err, lockmgr.ErrCanceled) {
				failures = append(failures, fmt.Errorf("caller B: unexpected error: %w", r.err))
			}
		case "C":
			if r.err != nil {
				failures = append(failures, fmt.Errorf("caller C: %w", r.err))
			} else {
				r.h.Release()
			}
		}
	}

	fmt.Fprintf(w, "live entries: %d\n", locks.Len())
	return errors.Join(failures...)
}

// stress runs callers goroutines that each increment a plain int under name
func stress(w io.Writer, locks lockmgr.ILockManager, name string, callers int) error {
	counter := 0
	var failed atomic.Int64

	var wg sync.WaitGroup
	wg.Add(callers)
	start := time.Now()

	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			err := lockmgr.WithLock(context.Background(), locks, name, func() error {
				counter++
				return nil
			})
			if err != nil {
				failed.Add(1)
				util.Logger.Warningf("stress caller failed: %v", err)
			}
		}()
	}
	wg.Wait()

	fmt.Fprintf(w, "callers: %d, counter: %d, failed: %d, took: %s, live entries: %d\n",
		callers, counter, failed.Load(), time.Since(start), locks.Len())
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d callers failed to acquire %q", n, callers, name)
	}
	if counter != callers {
		return fmt.Errorf("counter is %d, expected %d: critical sections overlapped", counter, callers)
	}
	return nil
}
