package maple

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/nibble/lib/db"
	"github.com/ValentinKolb/nibble/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/nibble/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var mlog = logger.GetLogger("engine")

// ErrClosed is returned by Set after Close
var ErrClosed = errors.New("maple: database closed")

// entryOverhead estimates the bytes a map entry holds beyond key and value
const entryOverhead = 16

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements db.KVDB with one concurrent hash map per shard. It
// serves as a baseline for the trie engine: every operation is lock free,
// but Range visits keys in no particular order.
type mapleImpl struct {
	shards []*internal.Shard
	count  *xsync.Counter
	closed atomic.Bool
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = runtime.NumCPU())
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	seed := util.GenerateSeed()
	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard(seed)
	}

	mlog.Debugf("created maple database with %d shards", numShards)
	return &mapleImpl{
		shards: shards,
		count:  xsync.NewCounter(),
	}
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods
// --------------------------------------------------------------------------

// Set inserts or updates the entry for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key, value uint64) error {
	if maple.closed.Load() {
		return ErrClosed
	}
	if _, loaded := internal.GetShard(key, maple.shards).Data.LoadAndStore(key, value); !loaded {
		maple.count.Inc()
	}
	return nil
}

// Delete removes the entry for key and returns the value it held.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key uint64) (uint64, bool) {
	value, loaded := internal.GetShard(key, maple.shards).Data.LoadAndDelete(key)
	if loaded {
		maple.count.Dec()
	}
	return value, loaded
}

// Get retrieves the value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key uint64) (uint64, bool) {
	return internal.GetShard(key, maple.shards).Data.Load(key)
}

// Has checks if key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key uint64) bool {
	_, ok := internal.GetShard(key, maple.shards).Data.Load(key)
	return ok
}

// Range calls fn for every entry, shard after shard, until fn returns false.
// Entries written during the call may or may not be visited.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Range(fn func(key, value uint64) bool) {
	for _, shard := range maple.shards {
		stopped := false
		shard.Data.Range(func(key, value uint64) bool {
			if !fn(key, value) {
				stopped = true
			}
			return !stopped
		})
		if stopped {
			return
		}
	}
}

// Len returns the number of entries.
func (maple *mapleImpl) Len() int {
	return int(maple.count.Value())
}

// --------------------------------------------------------------------------
// Metadata and Utility Methods
// --------------------------------------------------------------------------

// Metadata is the implementation specific part of db.DatabaseInfo
type Metadata struct {
	ShardCount        int                    `json:"shard_count"`
	ShardDistribution util.DistributionStats `json:"shard_distribution"`
	Info              string                 `json:"info"`
}

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	shardSizes := make([]float64, len(maple.shards))
	count := 0
	for i, s := range maple.shards {
		n := s.Data.Size()
		shardSizes[i] = float64(n)
		count += n
	}

	var features []db.Feature
	for f := db.FeatureSet; f <= db.FeatureOrderedRange; f <<= 1 {
		if maple.SupportsFeature(f) {
			features = append(features, f)
		}
	}

	return db.DatabaseInfo{
		SizeBytes:         count * (16 + entryOverhead),
		Count:             count,
		DbType:            db.ImplMaple,
		SupportedFeatures: features,
		Metadata: &Metadata{
			ShardCount:        len(maple.shards),
			ShardDistribution: util.NewDistributionStats(shardSizes),
			Info:              "SizeBytes is an estimate.",
		},
	}
}

// SupportsFeature checks if the database supports the given feature(s)
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet | db.FeatureGet | db.FeatureHas | db.FeatureDelete | db.FeatureRange
	return feature&supported == feature
}

// Close drops all entries. Set fails afterward.
func (maple *mapleImpl) Close() error {
	maple.closed.Store(true)
	for _, s := range maple.shards {
		s.Data.Clear()
	}
	maple.count.Reset()
	return nil
}
