// Package trie implements the db.KVDB interface on top of lib/index.
//
// The key space is split over a fixed number of shards. Each shard owns one
// index.Map, which is not safe for concurrent use, and a reader-biased
// xsync.RBMutex that serializes access to it: Get and Has take the read lock,
// Set and Delete the write lock. A key belongs to shard (key >> 7) % shards,
// so blocks of 128 consecutive keys, typical for dense identifiers, stay
// together and share trie leaves.
//
// Range read-locks every shard for the duration of the traversal and merges
// the ascending per-shard iterators with a min-heap (util.MapHeap), which
// yields a globally ascending order. The callback must not write to the
// database it is ranging over.
//
// Every instance keeps its own VictoriaMetrics set with operation counters
// and gauges for keys, arena bytes and live nodes. Databases returned by
// NewTrieDB implement db.MetricsWriter.
//
// Example:
//
//	database, err := trie.NewTrieDB(&trie.DBOptions{NumShards: 8})
//	if err != nil {
//		return err
//	}
//	defer database.Close()
//
//	_ = database.Set(1, 100)
//	database.Range(func(k, v uint64) bool {
//		fmt.Println(k, v)
//		return true
//	})
package trie
