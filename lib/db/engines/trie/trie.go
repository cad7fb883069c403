package trie

import (
	"fmt"
	"io"
	"runtime"

	"github.com/ValentinKolb/nibble/lib/db"
	"github.com/ValentinKolb/nibble/lib/db/engines/trie/internal"
	"github.com/ValentinKolb/nibble/lib/db/util"
	"github.com/ValentinKolb/nibble/lib/index"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var elog = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Core trie database structure
// --------------------------------------------------------------------------

// trieImpl implements db.KVDB on top of one index.Map per shard
type trieImpl struct {
	shards []*internal.Shard
	count  *xsync.Counter

	metrics *metrics.Set
	ops     opCounters
}

type opCounters struct {
	set, setErr, get, has, del, rng *metrics.Counter
}

// DBOptions configures the trieImpl behavior during initialization
type DBOptions struct {
	NumShards     int    // Number of shards (0 = runtime.NumCPU())
	ShardCapacity int    // Initial capacity of each shard index (0 = index default)
	MaxShardBytes uint64 // Arena ceiling of each shard (0 = index.DefaultMaxArenaBytes)
	OffHeap       bool   // Back the shard arenas with anonymous memory mappings
}

// DefaultOptions returns the default trieImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:     runtime.NumCPU(),
		ShardCapacity: 1024,
		MaxShardBytes: index.DefaultMaxArenaBytes,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewTrieDB creates a new sharded trie database with the specified options (optional)
func NewTrieDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shard, err := internal.NewShard(&index.Options{
			InitialCapacity: opts.ShardCapacity,
			MaxArenaBytes:   opts.MaxShardBytes,
			OffHeap:         opts.OffHeap,
		})
		if err != nil {
			for _, s := range shards[:i] {
				_ = s.Data.Close()
			}
			return nil, fmt.Errorf("trie: creating shard %d: %w", i, err)
		}
		shards[i] = shard
	}

	t := &trieImpl{
		shards:  shards,
		count:   xsync.NewCounter(),
		metrics: metrics.NewSet(),
	}
	t.ops = opCounters{
		set:    t.metrics.NewCounter(`nibble_engine_ops_total{op="set"}`),
		setErr: t.metrics.NewCounter(`nibble_engine_errors_total{op="set"}`),
		get:    t.metrics.NewCounter(`nibble_engine_ops_total{op="get"}`),
		has:    t.metrics.NewCounter(`nibble_engine_ops_total{op="has"}`),
		del:    t.metrics.NewCounter(`nibble_engine_ops_total{op="delete"}`),
		rng:    t.metrics.NewCounter(`nibble_engine_ops_total{op="range"}`),
	}
	t.metrics.NewGauge(`nibble_engine_keys`, func() float64 {
		return float64(t.count.Value())
	})
	t.metrics.NewGauge(`nibble_engine_arena_bytes`, func() float64 {
		return float64(t.collectStats().total.ArenaBytes)
	})
	t.metrics.NewGauge(`nibble_engine_live_nodes`, func() float64 {
		return float64(t.collectStats().total.LiveNodes)
	})

	elog.Debugf("created trie database with %d shards (ceiling %d bytes each)", numShards, opts.MaxShardBytes)
	return t, nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates the entry for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *trieImpl) Set(key, value uint64) error {
	t.ops.set.Inc()
	shard := internal.GetShard(key, t.shards)

	var err error
	shard.Write(func(m *index.Map) {
		before := m.Len()
		if err = m.Set(key, value); err == nil && m.Len() > before {
			t.count.Inc()
		}
	})
	if err != nil {
		t.ops.setErr.Inc()
		return fmt.Errorf("trie: set %d: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key and returns the value it held.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *trieImpl) Delete(key uint64) (value uint64, loaded bool) {
	t.ops.del.Inc()
	internal.GetShard(key, t.shards).Write(func(m *index.Map) {
		value, loaded = m.Delete(key)
	})
	if loaded {
		t.count.Dec()
	}
	return value, loaded
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *trieImpl) Get(key uint64) (value uint64, loaded bool) {
	t.ops.get.Inc()
	internal.GetShard(key, t.shards).Read(func(m *index.Map) {
		value, loaded = m.Get(key)
	})
	return value, loaded
}

// Has checks whether key exists.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *trieImpl) Has(key uint64) (loaded bool) {
	t.ops.has.Inc()
	internal.GetShard(key, t.shards).Read(func(m *index.Map) {
		loaded = m.Has(key)
	})
	return loaded
}

// Range visits all entries in ascending key order until fn returns false.
//
// Every shard is read-locked for the whole traversal and a min-heap merges
// the per-shard iterators. Writers block until Range returns. fn must not call
// any method of the same database: a Get or Has takes a second read lock,
// which blocks behind a waiting writer and deadlocks.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *trieImpl) Range(fn func(key, value uint64) bool) {
	t.ops.rng.Inc()

	tokens := make([]*xsync.RToken, len(t.shards))
	for i, s := range t.shards {
		tokens[i] = s.Lock.RLock()
	}
	defer func() {
		for i, s := range t.shards {
			s.Lock.RUnlock(tokens[i])
		}
	}()

	iters := make([]*index.Iterator, len(t.shards))
	values := make([]uint64, len(t.shards))
	merge := util.NewMapHeap()
	for i, s := range t.shards {
		iters[i] = s.Data.Iterator()
		if k, v, ok := iters[i].Next(); ok {
			values[i] = v
			merge.AddItem(uint64(i), k)
		}
	}

	for {
		src, key, ok := merge.PopMin()
		if !ok || !fn(key, values[src]) {
			return
		}
		if k, v, ok := iters[src].Next(); ok {
			values[src] = v
			merge.AddItem(src, k)
		}
	}
}

// Len returns the number of entries.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *trieImpl) Len() int {
	return int(t.count.Value())
}

// --------------------------------------------------------------------------
// Metadata and Utility Methods
// --------------------------------------------------------------------------

// Metadata is the implementation specific part of db.DatabaseInfo
type Metadata struct {
	ShardCount        int                    `json:"shard_count"`
	ShardDistribution util.DistributionStats `json:"shard_distribution"`
	Index             index.Stats            `json:"index"`
	Operations        map[string]uint64      `json:"operations"`
}

type shardStats struct {
	total    index.Stats
	perShard []float64
}

// collectStats reads the index statistics of every shard under its read lock
func (t *trieImpl) collectStats() shardStats {
	out := shardStats{perShard: make([]float64, len(t.shards))}
	for i, s := range t.shards {
		s.Read(func(m *index.Map) {
			st := m.Stats()
			out.perShard[i] = float64(st.Count)
			out.total.Count += st.Count
			out.total.Capacity += st.Capacity
			out.total.ArenaBytes += st.ArenaBytes
			out.total.MarkBytes += st.MarkBytes
			out.total.LiveNodes += st.LiveNodes
			out.total.FreeNodes += st.FreeNodes
			out.total.ValueBlocks += st.ValueBlocks
			out.total.LiveCells += st.LiveCells
			out.total.FreeCells += st.FreeCells
			out.total.Growths += st.Growths
		})
	}
	return out
}

// GetInfo returns statistics about the database. The shards are visited one
// after another, so under concurrent writes the totals are not a consistent cut.
func (t *trieImpl) GetInfo() db.DatabaseInfo {
	stats := t.collectStats()

	meta := &Metadata{
		ShardCount:        len(t.shards),
		ShardDistribution: util.NewDistributionStats(stats.perShard),
		Index:             stats.total,
		Operations: map[string]uint64{
			"set":        t.ops.set.Get(),
			"set_errors": t.ops.setErr.Get(),
			"get":        t.ops.get.Get(),
			"has":        t.ops.has.Get(),
			"delete":     t.ops.del.Get(),
			"range":      t.ops.rng.Get(),
		},
	}

	var features []db.Feature
	for f := db.FeatureSet; f <= db.FeatureOrderedRange; f <<= 1 {
		if t.SupportsFeature(f) {
			features = append(features, f)
		}
	}

	return db.DatabaseInfo{
		SizeBytes:         int(stats.total.ArenaBytes),
		Count:             stats.total.Count,
		DbType:            db.ImplTrie,
		SupportedFeatures: features,
		Metadata:          meta,
	}
}

// SupportsFeature checks if the database supports the given feature(s)
func (t *trieImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet | db.FeatureGet | db.FeatureHas | db.FeatureDelete |
		db.FeatureRange | db.FeatureOrderedRange
	return feature&supported == feature
}

// WritePrometheus writes the engine metrics in Prometheus text format
func (t *trieImpl) WritePrometheus(w io.Writer) {
	t.metrics.WritePrometheus(w)
}

// Close releases the arenas of all shards. Calls on a closed database
// behave like calls on an empty one, Set fails with index.ErrClosed.
func (t *trieImpl) Close() error {
	var firstErr error
	for i, s := range t.shards {
		s.Write(func(m *index.Map) {
			if err := m.Close(); err != nil {
				elog.Errorf("closing shard %d: %v", i, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		})
	}
	t.count.Reset()
	return firstErr
}
