package trie

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/nibble/lib/db"
	"github.com/ValentinKolb/nibble/lib/db/engines/trie/internal"
	dbtesting "github.com/ValentinKolb/nibble/lib/db/testing"
	"github.com/ValentinKolb/nibble/lib/index"
	"github.com/stretchr/testify/require"
)

func newTestDB(t testing.TB, opts *DBOptions) db.KVDB {
	database, err := NewTrieDB(opts)
	if err != nil {
		t.Fatalf("NewTrieDB failed: %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "TrieDB", func() db.KVDB {
		return newTestDB(t, nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunKVDBTests(t, "TrieDB(1 shard)", func() db.KVDB {
		return newTestDB(t, &DBOptions{NumShards: 1})
	})
}

func TestOffHeap(t *testing.T) {
	dbtesting.RunKVDBTests(t, "TrieDB(off-heap)", func() db.KVDB {
		return newTestDB(t, &DBOptions{NumShards: 4, OffHeap: true})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "TrieDB", func() db.KVDB {
		return newTestDB(b, nil)
	})
}

func TestShardIndex(t *testing.T) {
	// 128 consecutive keys share a shard
	for k := uint64(128); k < 256; k++ {
		require.Equal(t, 1, internal.ShardIndex(k, 4))
	}
	require.Equal(t, 0, internal.ShardIndex(127, 4))
	require.Equal(t, 0, internal.ShardIndex(512, 4))
	require.Equal(t, 0, internal.ShardIndex(^uint64(0), 1))
}

func TestShardCeiling(t *testing.T) {
	database := newTestDB(t, &DBOptions{NumShards: 1, ShardCapacity: 8, MaxShardBytes: 16 << 10})
	defer database.Close()

	var err error
	stored := 0
	for i := uint64(0); i < 1_000_000 && err == nil; i++ {
		if err = database.Set(i*0x9e3779b97f4a7c15, i); err == nil {
			stored++
		}
	}
	require.ErrorIs(t, err, index.ErrArenaFull)
	require.Equal(t, stored, database.Len())

	info := database.GetInfo()
	meta, ok := info.Metadata.(*Metadata)
	require.True(t, ok)
	require.Equal(t, uint64(1), meta.Operations["set_errors"])
	require.LessOrEqual(t, meta.Index.ArenaBytes, uint64(16<<10))

	// the failed insert left the shard intact
	require.NoError(t, database.Set(0, 42))
	v, ok := database.Get(0)
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}

func TestGetInfo(t *testing.T) {
	database := newTestDB(t, &DBOptions{NumShards: 4})
	defer database.Close()

	for i := uint64(0); i < 4*128; i++ {
		require.NoError(t, database.Set(i, i))
	}
	database.Get(1)
	database.Has(2)
	database.Delete(3)

	info := database.GetInfo()
	require.Equal(t, db.ImplTrie, info.DbType)
	require.Equal(t, 4*128-1, info.Count)
	require.Positive(t, info.SizeBytes)
	require.Len(t, info.SupportedFeatures, 6)

	meta := info.Metadata.(*Metadata)
	require.Equal(t, 4, meta.ShardCount)
	require.Equal(t, uint64(4*128), meta.Operations["set"])
	require.Equal(t, uint64(1), meta.Operations["delete"])
	require.Equal(t, 4*128-1, meta.Index.Count)
	require.Positive(t, meta.Index.LiveNodes)
	// one block of 128 keys per shard, one of them lost a key
	require.Greater(t, meta.ShardDistribution.DistributionQuality, 0.99)
}

func TestSupportsFeature(t *testing.T) {
	database := newTestDB(t, &DBOptions{NumShards: 2})
	defer database.Close()

	require.True(t, database.SupportsFeature(db.FeatureSet|db.FeatureOrderedRange))
	require.False(t, database.SupportsFeature(db.Feature(1<<10)))
}

func TestWritePrometheus(t *testing.T) {
	database := newTestDB(t, &DBOptions{NumShards: 2})
	defer database.Close()
	require.NoError(t, database.Set(1, 1))

	mw, ok := database.(db.MetricsWriter)
	require.True(t, ok)

	var buf bytes.Buffer
	mw.WritePrometheus(&buf)
	require.Contains(t, buf.String(), `nibble_engine_ops_total{op="set"} 1`)
	require.Contains(t, buf.String(), `nibble_engine_keys 1`)
	require.Contains(t, buf.String(), `nibble_engine_arena_bytes`)
}

func TestCloseReportsClosed(t *testing.T) {
	database := newTestDB(t, &DBOptions{NumShards: 2})
	require.NoError(t, database.Close())
	require.True(t, errors.Is(database.Set(1, 1), index.ErrClosed))
}

// Range with a callback that stays out of the database completes while
// writers keep waiting for the shard locks.
func TestRangeAlongsideWriters(t *testing.T) {
	database, err := NewTrieDB(&DBOptions{NumShards: 4})
	require.NoError(t, err)
	defer database.Close()

	for k := uint64(0); k < 10_000; k++ {
		require.NoError(t, database.Set(k, k))
	}

	stop := make(chan struct{})
	var writers sync.WaitGroup
	for w := uint64(0); w < 4; w++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for i := uint64(0); ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				_ = database.Set(w<<40|i%200_000, i)
				database.Delete(w<<40 | (i/2)%200_000)
			}
		}()
	}

	done := make(chan bool)
	go func() {
		ascending := true
		for round := 0; round < 20; round++ {
			var prev uint64
			first := true
			database.Range(func(k, _ uint64) bool {
				if !first && k <= prev {
					ascending = false
				}
				prev, first = k, false
				return true
			})
		}
		done <- ascending
	}()

	select {
	case ascending := <-done:
		require.True(t, ascending, "Range must stay ascending under concurrent writes")
	case <-time.After(10 * time.Second):
		t.Fatal("Range did not complete alongside writers")
	}
	close(stop)
	writers.Wait()
}
