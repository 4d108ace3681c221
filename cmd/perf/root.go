package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/namedlock/cmd/util"
	"github.com/ValentinKolb/namedlock/lib/lockmgr"
	libutil "github.com/ValentinKolb/namedlock/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PerfCmd represents the perf command
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the lock manager",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix   = "__perf"
	perfNumThreads  = 10
	perfKeySpread   = 100
	perfTimeout     = 50 * time.Microsecond
	perfFairnessDur = time.Second
	perfSkip        = make([]string, 0)
)

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. contended,fairness)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "keys"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many different names to use for the spread test"))
	key = "wait-timeout"
	PerfCmd.Flags().Duration(key, 50*time.Microsecond, util.WrapString("Timeout used by the timeout test"))
	key = "fairness-duration"
	PerfCmd.Flags().Duration(key, time.Second, util.WrapString("How long the fairness test runs"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	PerfCmd.Flags().Bool(key, false, util.WrapString("Print the lock manager metrics in Prometheus format after the run"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfTimeout = viper.GetDuration("wait-timeout")
	perfFairnessDur = viper.GetDuration("fairness-duration")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 || perfNumThreads <= 0 {
		return fmt.Errorf("keys and threads must be positive")
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	set := metrics.NewSet()
	opts := util.GetManagerOptions(set)
	locks := lockmgr.NewLockManager(opts)

	fmt.Fprintln(out, "Performance testing tool for the lock manager")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintln(out, opts.String())
	fmt.Fprintf(out, "Threads: %d\n", perfNumThreads)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	latencies := make(map[string]gometrics.Timer)

	for _, bench := range benchmarks(locks) {
		if shouldSkip(bench.name) {
			results[bench.name] = testing.BenchmarkResult{}
			printResult(out, bench.name, testing.BenchmarkResult{}, nil)
			continue
		}

		timer := gometrics.NewTimer()
		result := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(perfNumThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					bench.op(counter)
					timer.UpdateSince(start)
					counter++
				}
			})
		})
		timer.Stop()

		results[bench.name] = result
		latencies[bench.name] = timer
		printResult(out, bench.name, result, timer)
	}

	if !shouldSkip("fairness") {
		fairness(out, locks)
	}

	fmt.Fprintf(out, "\nlive entries after run: %d\n", locks.Len())

	if viper.GetBool("metrics") {
		fmt.Fprintln(out)
		if mw, ok := locks.(lockmgr.IMetricsWriter); ok {
			mw.WritePrometheus(out)
		}
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Fprintf(out, "\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, latencies); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Fprintln(out, "Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

type benchmark struct {
	name string
	op   func(counter int)
}

// benchmarks returns the workloads run against locks. Every op releases
// what it acquired.
func benchmarks(locks lockmgr.ILockManager) []benchmark {
	ctx := context.Background()
	getKey := getKeys("spread")

	acquire := func(name string) {
		h, err := locks.Acquire(ctx, name)
		if err != nil {
			return
		}
		h.Release()
	}

	return []benchmark{
		{name: "contended", op: func(int) {
			acquire(perfKeyPrefix + "-contended")
		}},
		{name: "spread", op: func(counter int) {
			acquire(getKey(counter))
		}},
		{name: "try", op: func(int) {
			if h, ok := locks.TryAcquire(perfKeyPrefix + "-try"); ok {
				h.Release()
			}
		}},
		{name: "timeout", op: func(int) {
			if h, err := locks.AcquireTimeout(perfKeyPrefix+"-timeout", perfTimeout); err == nil {
				h.Release()
			}
		}},
	}
}

// fairness lets one goroutine per thread compete for one name and reports
// how evenly the lock was granted and how many grants had to wait
func fairness(out io.Writer, locks lockmgr.ILockManager) {
	name := perfKeyPrefix + "-fairness"
	grants := make([]int64, perfNumThreads)
	waited := xsync.NewCounter()

	ctx, cancel := context.WithTimeout(context.Background(), perfFairnessDur)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(perfNumThreads)
	for w := 0; w < perfNumThreads; w++ {
		go func(w int) {
			defer wg.Done()
			for {
				h, ok := locks.TryAcquire(name)
				if !ok {
					waited.Inc()
					var err error
					if h, err = locks.Acquire(ctx, name); err != nil {
						return
					}
				}
				grants[w]++
				h.Release()
			}
		}(w)
	}
	wg.Wait()

	stats := libutil.NewFairnessStats(grants)
	fmt.Fprintf(out, "%-20s%.0f grants (%d waited), mean %.0f, min %.0f, max %.0f, score %.2f\n",
		"fairness", stats.Sum, waited.Value(), stats.Mean, stats.Min, stats.Max, stats.Score)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// creates the test names and a function to pick one by index (with wraparound)
func getKeys(prefix string) func(int) string {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	return func(i int) string {
		return keys[i%perfKeySpread]
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(out io.Writer, test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Fprintf(out, "%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Fprintf(out, "%-20s%.0fns/op (%s/op)\t%.0f ops/sec", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if timer != nil {
		ps := timer.Percentiles([]float64{0.5, 0.99})
		fmt.Fprintf(out, "\tp50 %s\tp99 %s\tmax %s",
			time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(timer.Max()))
	}
	fmt.Fprintln(out)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, latencies map[string]gometrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ns", "P99Ns", "MaxNs",
		"ManagerName", "DetectReentrancy", "Threads", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec, p50, p99, maxNs float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		if timer, ok := latencies[test]; ok {
			ps := timer.Percentiles([]float64{0.5, 0.99})
			p50, p99, maxNs = ps[0], ps[1], float64(timer.Max())
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", p50),
			fmt.Sprintf("%.0f", p99),
			fmt.Sprintf("%.0f", maxNs),
			viper.GetString("manager-name"),
			strconv.FormatBool(viper.GetBool("detect-reentrancy")),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
