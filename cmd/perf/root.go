package perf

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/nibble/cmd/util"
	"github.com/ValentinKolb/nibble/lib/common"
	"github.com/ValentinKolb/nibble/lib/db"
	dbutil "github.com/ValentinKolb/nibble/lib/db/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Throughput benchmarks of the sharded trie engine",
		Long: `Runs throughput benchmarks of the sharded trie engine with one of several
key patterns. Every benchmark starts from a fresh engine. The configuration can
be set via command line flags or environment variables (NIBBLE_<flag>).`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfNumThreads = 10
	perfKeySpread  = 100_000
	perfPattern    = "sequential"
	perfSkip       = make([]string, 0)
	perfEngine     = &common.EngineConfig{}
)

// patterns map a counter to a key
var patterns = map[string]func(seed uint64) func(i uint64) uint64{
	"sequential": func(uint64) func(uint64) uint64 {
		return func(i uint64) uint64 { return i }
	},
	// 16 keys per leaf, leaves far apart
	"sparse": func(uint64) func(uint64) uint64 {
		return func(i uint64) uint64 { return (i>>4)<<24 | i&0xf }
	},
	"random": func(seed uint64) func(uint64) uint64 {
		return func(i uint64) uint64 { return dbutil.HashKey(i ^ seed) }
	},
	// keys derived from strings, the way string keyed stores map them
	"hashed": func(seed uint64) func(uint64) uint64 {
		return func(i uint64) uint64 { return dbutil.HashString("key-"+strconv.FormatUint(i, 10), seed) }
	},
}

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,range)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU used by the parallel benchmarks"))
	key = "keys"
	PerfCmd.Flags().Int(key, 100_000, util.WrapString("How many different keys the read benchmarks use"))
	key = "pattern"
	PerfCmd.Flags().String(key, "sequential", util.WrapString("Key pattern: sequential, sparse, random or hashed"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save the engine metrics of every benchmark in Prometheus text format ('-' for stdout)"))

	util.SetupEngineFlags(PerfCmd)
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfPattern = viper.GetString("pattern")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	perfEngine = util.GetEngineConfig()

	if _, ok := patterns[perfPattern]; !ok {
		return fmt.Errorf("invalid key pattern %q (expected sequential, sparse, random or hashed)", perfPattern)
	}
	if perfKeySpread <= 0 {
		return fmt.Errorf("--keys must be positive")
	}
	return nil
}

// benchmark is one entry of the perf suite. prefill keys are stored before
// the timer starts.
type benchmark struct {
	name    string
	prefill bool
	run     func(b *testing.B, database db.KVDB, key func(uint64) uint64)
}

var benchmarks = []benchmark{
	{name: "set", run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		var next atomic.Uint64
		parallel(b, func() {
			i := next.Add(1)
			if err := database.Set(key(i), i); err != nil {
				failure.set(fmt.Errorf("(set) - %w", err))
			}
		})
	}},
	{name: "set-existing", prefill: true, run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		var next atomic.Uint64
		parallel(b, func() {
			i := next.Add(1)
			_ = database.Set(key(i%uint64(perfKeySpread)), i)
		})
	}},
	{name: "set-boxed", run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		var next atomic.Uint64
		parallel(b, func() {
			i := next.Add(1)
			if err := database.Set(key(i), math.MaxUint64-i); err != nil {
				failure.set(fmt.Errorf("(set-boxed) - %w", err))
			}
		})
	}},
	{name: "get", prefill: true, run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		var next atomic.Uint64
		parallel(b, func() {
			database.Get(key(next.Add(1) % uint64(perfKeySpread)))
		})
	}},
	{name: "has", prefill: true, run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		var next atomic.Uint64
		parallel(b, func() {
			database.Has(key(next.Add(1) % uint64(perfKeySpread)))
		})
	}},
	{name: "has-not", prefill: true, run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		var next atomic.Uint64
		parallel(b, func() {
			database.Has(key(uint64(perfKeySpread) + next.Add(1)))
		})
	}},
	{name: "delete", run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		for i := 0; i < b.N; i++ {
			_ = database.Set(key(uint64(i)), uint64(i))
		}
		var next atomic.Uint64
		b.ResetTimer()
		parallel(b, func() {
			database.Delete(key(next.Add(1) - 1))
		})
	}},
	{name: "mixed", prefill: true, run: func(b *testing.B, database db.KVDB, key func(uint64) uint64) {
		b.SetParallelism(perfNumThreads)
		b.RunParallel(func(pb *testing.PB) {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			counter := 0
			for pb.Next() {
				k := key(uint64(rng.Intn(perfKeySpread)))
				switch counter % 4 {
				case 0:
					_ = database.Set(k, uint64(counter))
				case 1:
					database.Get(k)
				case 2:
					database.Delete(k)
				case 3:
					database.Has(k)
				}
				counter++
			}
		})
	}},
	// one op is one visited key
	{name: "range", prefill: true, run: func(b *testing.B, database db.KVDB, _ func(uint64) uint64) {
		visited := 0
		for visited < b.N {
			database.Range(func(_, _ uint64) bool {
				visited++
				return visited < b.N
			})
		}
	}},
}

// firstError keeps the first error reported by any benchmark goroutine
type firstError struct {
	once sync.Once
	err  error
}

func (f *firstError) set(err error) { f.once.Do(func() { f.err = err }) }

var failure = &firstError{}

func parallel(b *testing.B, op func()) {
	b.SetParallelism(perfNumThreads)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			op()
		}
	})
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println(util.Heading("Performance testing tool for the nibble trie engine"))

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(perfEngine.String())
	fmt.Printf("\n  %-22s: %d\n", "Threads", perfNumThreads)
	fmt.Printf("  %-22s: %d\n", "Keys", perfKeySpread)
	fmt.Printf("  %-22s: %s\n", "Pattern", perfPattern)
	fmt.Println()

	fmt.Println("starting tests...")

	key := patterns[perfPattern](dbutil.GenerateSeed())
	results := make(map[string]testing.BenchmarkResult)
	exported := make(map[string][]byte)

	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, results[bm.name])
			continue
		}

		result := testing.Benchmark(func(b *testing.B) {
			database, err := util.NewEngine(perfEngine)
			if err != nil {
				failure.set(err)
				return
			}
			b.Cleanup(func() {
				if mw, ok := database.(db.MetricsWriter); ok {
					var buf bytes.Buffer
					mw.WritePrometheus(&buf)
					exported[bm.name] = buf.Bytes()
				}
				_ = database.Close()
			})

			if bm.prefill {
				for i := 0; i < perfKeySpread; i++ {
					if err := database.Set(key(uint64(i)), uint64(i)); err != nil {
						failure.set(fmt.Errorf("(%s) - prefill: %w", bm.name, err))
						return
					}
				}
			}

			b.ResetTimer()
			bm.run(b, database, key)
		})
		if failure.err != nil {
			return failure.err
		}

		results[bm.name] = result
		printResult(bm.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	if metricsPath := viper.GetString("metrics"); metricsPath != "" {
		if err := writeMetrics(metricsPath, exported); err != nil {
			return fmt.Errorf("failed to export metrics: %v", err)
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.N == 0 {
		fmt.Printf("%-20s%s\n", test, util.Dim("skipped"))
		return
	}

	nsPerOp := math.Max(float64(result.T.Nanoseconds())/float64(result.N), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.1fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeMetrics writes the metrics snapshot taken at the end of every benchmark
func writeMetrics(path string, exported map[string][]byte) error {
	out := os.Stdout
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	for _, bm := range benchmarks {
		data, ok := exported[bm.name]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(out, "# benchmark: %s\n%s", bm.name, data); err != nil {
			return err
		}
	}
	return nil
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Shards", "ShardCapacity", "ShardMaxBytes", "OffHeap",
		"Threads", "Keys", "Pattern",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, bm := range benchmarks {
		result := results[bm.name]

		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.N > 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.T.Nanoseconds())/float64(result.N), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			bm.name,
			fmt.Sprintf("%.1f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.Itoa(perfEngine.NumShards),
			strconv.Itoa(perfEngine.ShardCapacity),
			strconv.FormatUint(perfEngine.MaxShardBytes, 10),
			strconv.FormatBool(perfEngine.OffHeap),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
			perfPattern,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", bm.name, err)
		}
	}

	return nil
}
