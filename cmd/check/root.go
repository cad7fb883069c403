package check

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ValentinKolb/nibble/cmd/util"
	"github.com/ValentinKolb/nibble/lib/common"
	"github.com/ValentinKolb/nibble/lib/db"
	"github.com/ValentinKolb/nibble/lib/index"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var clog = logger.GetLogger("cli")

var (
	CheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Randomized verification of the index and the engine",
		Long: `Runs random set, get and delete operations against a private index per worker
and against one shared engine, and compares every result, the iteration order
and the final contents with an ordered-set oracle. Exits with an error on the
first mismatch.`,
		PreRunE: processCheckConfig,
		RunE:    run,
	}
	checkOps     = 200_000
	checkWorkers = 4
	checkSeed    int64
	checkRate    = 0.0
	checkEngine  = &common.EngineConfig{}
)

const (
	// workers own disjoint engine key ranges, tagged in the top byte
	tagShift = 56
	keyMask  = 1<<tagShift - 1

	// order and count are compared every orderEvery operations
	orderEvery = 10_000
)

func init() {
	key := "ops"
	CheckCmd.Flags().Int(key, 200_000, util.WrapString("Number of operations every worker performs"))
	key = "workers"
	CheckCmd.Flags().Int(key, 4, util.WrapString("Number of concurrent workers (max 256)"))
	key = "seed"
	CheckCmd.Flags().Int64(key, 0, util.WrapString("Seed of the operation sequence (0 = random)"))
	key = "rate"
	CheckCmd.Flags().Float64(key, 0, util.WrapString("Limit all workers together to this many operations per second (0 = unlimited)"))

	util.SetupEngineFlags(CheckCmd)
}

func processCheckConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	checkOps = viper.GetInt("ops")
	checkWorkers = viper.GetInt("workers")
	checkSeed = viper.GetInt64("seed")
	checkRate = viper.GetFloat64("rate")
	checkEngine = util.GetEngineConfig()

	if checkWorkers < 1 || checkWorkers > 256 {
		return fmt.Errorf("--workers must be between 1 and 256")
	}
	if checkOps < 0 {
		return fmt.Errorf("--ops must not be negative")
	}
	if checkSeed == 0 {
		checkSeed = time.Now().UnixNano()
	}
	return nil
}

// worker holds the private state of one verification goroutine
type worker struct {
	id     int
	rng    *rand.Rand
	local  *index.Map
	shared db.KVDB
	oracle *roaring64.Bitmap
	values map[uint64]uint64
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println(util.Heading("Randomized verification of the nibble index and engine"))

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(checkEngine.String())
	fmt.Printf("\n  %-22s: %d\n", "Workers", checkWorkers)
	fmt.Printf("  %-22s: %d\n", "Ops per Worker", checkOps)
	fmt.Printf("  %-22s: %d\n", "Seed", checkSeed)
	if checkRate > 0 {
		fmt.Printf("  %-22s: %.0f ops/sec\n", "Rate", checkRate)
	}
	fmt.Println()

	shared, err := util.NewEngine(checkEngine)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer shared.Close()

	var limiter *rate.Limiter
	if checkRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(checkRate), checkWorkers)
	}

	workers := make([]*worker, checkWorkers)
	for i := range workers {
		local, err := index.New(nil)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		defer local.Close()

		workers[i] = &worker{
			id:     i,
			rng:    rand.New(rand.NewSource(checkSeed + int64(i))),
			local:  local,
			shared: shared,
			oracle: roaring64.New(),
			values: make(map[uint64]uint64),
		}
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for _, w := range workers {
		g.Go(func() error {
			return w.run(ctx, limiter)
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("%-20s%s\n", "operations", util.Fail("FAIL"))
		return err
	}
	fmt.Printf("%-20s%s %s\n", "operations", util.Pass("PASS"),
		util.Dim(fmt.Sprintf("(%d ops in %s)", checkOps*checkWorkers, time.Since(start).Round(time.Millisecond))))

	if err := verifyEngine(shared, workers); err != nil {
		fmt.Printf("%-20s%s\n", "engine contents", util.Fail("FAIL"))
		return err
	}
	fmt.Printf("%-20s%s %s\n", "engine contents", util.Pass("PASS"), util.Dim(fmt.Sprintf("(%d keys)", shared.Len())))

	info := shared.GetInfo()
	fmt.Printf("%-20s%s\n", "engine arena", util.Dim(fmt.Sprintf("%d bytes", info.SizeBytes)))
	return nil
}

// run performs the random operation sequence of a worker
func (w *worker) run(ctx context.Context, limiter *rate.Limiter) error {
	tag := uint64(w.id) << tagShift

	for op := 0; op < checkOps; op++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		} else if op%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		key := w.nextKey()
		switch r := w.rng.Intn(4); {
		case r < 2:
			value := w.nextValue()
			if err := w.local.Set(key, value); err != nil {
				return fmt.Errorf("worker %d op %d: index set %d: %w", w.id, op, key, err)
			}
			if err := w.shared.Set(tag|key, value); err != nil {
				return fmt.Errorf("worker %d op %d: engine set %d: %w", w.id, op, key, err)
			}
			w.oracle.Add(key)
			w.values[key] = value

		case r == 2:
			want, wantOk := w.values[key]
			if got, ok := w.local.Delete(key); ok != wantOk || got != want {
				return fmt.Errorf("worker %d op %d: index delete %d = (%d, %v), want (%d, %v)", w.id, op, key, got, ok, want, wantOk)
			}
			if got, ok := w.shared.Delete(tag | key); ok != wantOk || got != want {
				return fmt.Errorf("worker %d op %d: engine delete %d = (%d, %v), want (%d, %v)", w.id, op, key, got, ok, want, wantOk)
			}
			w.oracle.Remove(key)
			delete(w.values, key)

		default:
			want, wantOk := w.values[key]
			if got, ok := w.local.Get(key); ok != wantOk || got != want {
				return fmt.Errorf("worker %d op %d: index get %d = (%d, %v), want (%d, %v)", w.id, op, key, got, ok, want, wantOk)
			}
			if got, ok := w.shared.Get(tag | key); ok != wantOk || got != want {
				return fmt.Errorf("worker %d op %d: engine get %d = (%d, %v), want (%d, %v)", w.id, op, key, got, ok, want, wantOk)
			}
		}

		if (op+1)%orderEvery == 0 || op+1 == checkOps {
			if err := w.verifyLocal(); err != nil {
				return fmt.Errorf("worker %d op %d: %w", w.id, op, err)
			}
		}
	}

	clog.Debugf("worker %d finished with %d keys", w.id, w.oracle.GetCardinality())
	return nil
}

// nextKey draws from a dense range half of the time so that keys share
// prefixes and are hit again
func (w *worker) nextKey() uint64 {
	if w.rng.Intn(2) == 0 {
		return uint64(w.rng.Intn(1 << 14))
	}
	return w.rng.Uint64() & keyMask
}

// nextValue mixes values that fit a slot with values that need a cell
func (w *worker) nextValue() uint64 {
	if w.rng.Intn(2) == 0 {
		return uint64(w.rng.Intn(1 << 20))
	}
	return w.rng.Uint64()
}

// verifyLocal compares count and traversal order of the private index with the oracle
func (w *worker) verifyLocal() error {
	if got, want := uint64(w.local.Len()), w.oracle.GetCardinality(); got != want {
		return fmt.Errorf("index len = %d, want %d", got, want)
	}

	expected := w.oracle.Iterator()
	for key, value := range w.local.All() {
		if !expected.HasNext() {
			return fmt.Errorf("index yields extra key %d", key)
		}
		if want := expected.Next(); key != want {
			return fmt.Errorf("index yields key %d, want %d", key, want)
		}
		if value != w.values[key] {
			return fmt.Errorf("index yields %d=%d, want %d", key, value, w.values[key])
		}
	}
	if expected.HasNext() {
		return fmt.Errorf("index misses key %d", expected.Next())
	}
	return nil
}

// verifyEngine compares the shared engine with the union of all worker oracles.
// Tags order the workers, so the expected traversal is their oracles in turn.
func verifyEngine(shared db.KVDB, workers []*worker) error {
	var total uint64
	for _, w := range workers {
		total += w.oracle.GetCardinality()
	}
	if got := uint64(shared.Len()); got != total {
		return fmt.Errorf("engine len = %d, want %d", got, total)
	}

	if !shared.SupportsFeature(db.FeatureOrderedRange) {
		return verifyMembers(shared, workers)
	}

	var (
		current  = 0
		expected = workers[0].oracle.Iterator()
		mismatch error
	)
	shared.Range(func(key, value uint64) bool {
		for !expected.HasNext() && current+1 < len(workers) {
			current++
			expected = workers[current].oracle.Iterator()
		}
		if !expected.HasNext() {
			mismatch = fmt.Errorf("engine yields extra key %#x", key)
			return false
		}
		w := workers[current]
		raw := expected.Next()
		if want := uint64(w.id)<<tagShift | raw; key != want {
			mismatch = fmt.Errorf("engine yields key %#x, want %#x", key, want)
			return false
		}
		if value != w.values[raw] {
			mismatch = fmt.Errorf("engine yields %#x=%d, want %d", key, value, w.values[raw])
			return false
		}
		return true
	})
	return mismatch
}

// verifyMembers checks an engine without ordered traversal key by key
func verifyMembers(shared db.KVDB, workers []*worker) error {
	var mismatch error
	shared.Range(func(key, value uint64) bool {
		id, raw := int(key>>tagShift), key&keyMask
		if id >= len(workers) || !workers[id].oracle.Contains(raw) {
			mismatch = fmt.Errorf("engine yields extra key %#x", key)
			return false
		}
		if want := workers[id].values[raw]; value != want {
			mismatch = fmt.Errorf("engine yields %#x=%d, want %d", key, value, want)
			return false
		}
		return true
	})
	return mismatch
}
