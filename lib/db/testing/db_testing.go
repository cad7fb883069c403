package testing

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ValentinKolb/nibble/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("SharedPrefixes", func(t *testing.T) {
			testSharedPrefixes(t, factory())
		})

		t.Run("RangeOrder", func(t *testing.T) {
			testRangeOrder(t, factory())
		})

		t.Run("RangeStop", func(t *testing.T) {
			testRangeStop(t, factory())
		})

		t.Run("RandomAgainstOracle", func(t *testing.T) {
			testRandomAgainstOracle(t, factory())
		})

		t.Run("ConcurrentAccess", func(t *testing.T) {
			testConcurrentAccess(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustSet(t testing.TB, database db.KVDB, key, value uint64) {
	if err := database.Set(key, value); err != nil {
		t.Fatalf("Set(%#x) failed: %v", key, err)
	}
}

// collect returns all pairs in the order Range visits them
func collect(database db.KVDB) (keys, values []uint64) {
	database.Range(func(k, v uint64) bool {
		keys = append(keys, k)
		values = append(values, v)
		return true
	})
	return keys, values
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	mustSet(t, database, 42, 1)
	value, exists := database.Get(42)
	if !exists || value != 1 {
		t.Errorf("Expected (1, true) after Set, got (%d, %v)", value, exists)
	}

	// overwrite with a value too large to be stored inline
	mustSet(t, database, 42, math.MaxUint64-1)
	value, exists = database.Get(42)
	if !exists || value != math.MaxUint64-1 {
		t.Errorf("Expected (%d, true) after overwrite, got (%d, %v)", uint64(math.MaxUint64-1), value, exists)
	}

	// and back to a small one
	mustSet(t, database, 42, 7)
	if value, _ = database.Get(42); value != 7 {
		t.Errorf("Expected 7 after second overwrite, got %d", value)
	}

	if _, exists = database.Get(43); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	if database.Len() != 1 {
		t.Errorf("Expected Len 1 after overwrites, got %d", database.Len())
	}

	// zero is a value like any other
	mustSet(t, database, 1000, 0)
	if value, exists = database.Get(1000); !exists || value != 0 {
		t.Errorf("Expected (0, true) for a stored zero, got (%d, %v)", value, exists)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	if _, loaded := database.Delete(1); loaded {
		t.Errorf("Delete on an empty database should report loaded=false")
	}

	for i := uint64(0); i < 100; i++ {
		mustSet(t, database, i, i*3)
	}

	prev, loaded := database.Delete(50)
	if !loaded || prev != 150 {
		t.Errorf("Expected Delete to return (150, true), got (%d, %v)", prev, loaded)
	}
	if _, exists := database.Get(50); exists {
		t.Errorf("Key 50 should not exist after Delete")
	}
	if _, loaded = database.Delete(50); loaded {
		t.Errorf("Second Delete should report loaded=false")
	}
	if database.Len() != 99 {
		t.Errorf("Expected Len 99, got %d", database.Len())
	}

	// neighbours are untouched
	for _, k := range []uint64{49, 51} {
		if v, ok := database.Get(k); !ok || v != k*3 {
			t.Errorf("Neighbour %d damaged by Delete: (%d, %v)", k, v, ok)
		}
	}

	// delete then re-insert
	mustSet(t, database, 50, 1)
	if v, ok := database.Get(50); !ok || v != 1 {
		t.Errorf("Expected re-inserted key to return (1, true), got (%d, %v)", v, ok)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas|db.FeatureDelete)

	if database.Has(7) {
		t.Errorf("Has should return false for a key that was never set")
	}
	mustSet(t, database, 7, 0)
	if !database.Has(7) {
		t.Errorf("Has should return true for an existing key")
	}
	database.Delete(7)
	if database.Has(7) {
		t.Errorf("Has should return false after Delete")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	cases := []struct {
		key, value uint64
	}{
		{0, 0},
		{math.MaxUint64, math.MaxUint64},
		{1 << 63, 1 << 26},
		{1<<63 - 1, 1<<26 - 1},
		{0xf, 0xf0f0f0f0f0f0f0f0},
		{0xf000000000000000, 1},
	}

	for _, c := range cases {
		mustSet(t, database, c.key, c.value)
	}
	for _, c := range cases {
		if v, ok := database.Get(c.key); !ok || v != c.value {
			t.Errorf("Key %#x: expected (%#x, true), got (%#x, %v)", c.key, c.value, v, ok)
		}
	}
	if database.Len() != len(cases) {
		t.Errorf("Expected Len %d, got %d", len(cases), database.Len())
	}

	for _, c := range cases {
		if prev, ok := database.Delete(c.key); !ok || prev != c.value {
			t.Errorf("Delete %#x: expected (%#x, true), got (%#x, %v)", c.key, c.value, prev, ok)
		}
	}
	if database.Len() != 0 {
		t.Errorf("Expected empty database, Len is %d", database.Len())
	}
}

// testSharedPrefixes stores keys that differ in exactly one nibble each, so
// every digit position has to branch at some point.
func testSharedPrefixes(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	const base = uint64(0x0123456789abcdef)
	keys := []uint64{base}
	for pos := 0; pos < 16; pos++ {
		for d := uint64(1); d < 16; d += 7 {
			keys = append(keys, base^(d<<(4*pos)))
		}
	}

	for i, k := range keys {
		mustSet(t, database, k, uint64(i))
	}
	for i, k := range keys {
		if v, ok := database.Get(k); !ok || v != uint64(i) {
			t.Errorf("Key %#x: expected (%d, true), got (%d, %v)", k, i, v, ok)
		}
	}

	// removing every other key must leave the rest reachable
	for i, k := range keys {
		if i%2 == 0 {
			database.Delete(k)
		}
	}
	for i, k := range keys {
		_, ok := database.Get(k)
		if ok != (i%2 == 1) {
			t.Errorf("Key %#x: expected exists=%v after partial delete", k, i%2 == 1)
		}
	}
}

func testRangeOrder(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureOrderedRange)

	rng := rand.New(rand.NewSource(1))
	oracle := roaring64.New()
	for i := 0; i < 5000; i++ {
		k := rng.Uint64() >> uint(rng.Intn(64))
		oracle.Add(k)
		mustSet(t, database, k, ^k)
	}

	keys, values := collect(database)
	expected := oracle.ToArray()
	if len(keys) != len(expected) {
		t.Fatalf("Range visited %d keys, expected %d", len(keys), len(expected))
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Fatalf("Range order differs at %d: expected %#x, got %#x", i, expected[i], keys[i])
		}
		if values[i] != ^keys[i] {
			t.Errorf("Range value for %#x: expected %#x, got %#x", keys[i], ^keys[i], values[i])
		}
	}
}

func testRangeStop(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureRange)

	for i := uint64(0); i < 1000; i++ {
		mustSet(t, database, i*977, i)
	}

	visited := 0
	database.Range(func(_, _ uint64) bool {
		visited++
		return visited < 10
	})
	if visited != 10 {
		t.Errorf("Range should stop after fn returns false, visited %d", visited)
	}

	// an empty database visits nothing
	empty := 0
	for i := uint64(0); i < 1000; i++ {
		database.Delete(i * 977)
	}
	database.Range(func(_, _ uint64) bool {
		empty++
		return true
	})
	if empty != 0 {
		t.Errorf("Range on an emptied database visited %d keys", empty)
	}
}

func testRandomAgainstOracle(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureRange)

	rng := rand.New(rand.NewSource(99))
	oracle := roaring64.New()
	values := make(map[uint64]uint64)

	// keys drawn from a small pool so that deletes and overwrites hit
	pool := make([]uint64, 512)
	for i := range pool {
		pool[i] = rng.Uint64() & 0xffff_0000_0fff_ffff
	}

	for i := 0; i < 20_000; i++ {
		k := pool[rng.Intn(len(pool))]
		switch rng.Intn(3) {
		case 0, 1:
			v := rng.Uint64() >> uint(rng.Intn(64))
			mustSet(t, database, k, v)
			oracle.Add(k)
			values[k] = v
		case 2:
			prev, loaded := database.Delete(k)
			if loaded != oracle.Contains(k) {
				t.Fatalf("Delete(%#x) loaded=%v, oracle has=%v", k, loaded, oracle.Contains(k))
			}
			if loaded && prev != values[k] {
				t.Fatalf("Delete(%#x) returned %d, expected %d", k, prev, values[k])
			}
			oracle.Remove(k)
			delete(values, k)
		}
	}

	if uint64(database.Len()) != oracle.GetCardinality() {
		t.Errorf("Len %d does not match oracle cardinality %d", database.Len(), oracle.GetCardinality())
	}

	keys, got := collect(database)
	if uint64(len(keys)) != oracle.GetCardinality() {
		t.Fatalf("Range visited %d keys, oracle holds %d", len(keys), oracle.GetCardinality())
	}
	if !database.SupportsFeature(db.FeatureOrderedRange) {
		for i, k := range keys {
			if !oracle.Contains(k) || got[i] != values[k] {
				t.Fatalf("Range yields (%#x, %d) not held by the oracle", k, got[i])
			}
		}
		return
	}
	it := oracle.Iterator()
	for i := 0; it.HasNext(); i++ {
		k := it.Next()
		if keys[i] != k || got[i] != values[k] {
			t.Fatalf("Range diverges from oracle at %d (key %#x)", i, k)
		}
	}
}

func testConcurrentAccess(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	const numWorkers = 8
	const keysPerWorker = 2000

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(worker uint64) {
			defer wg.Done()
			for i := uint64(0); i < keysPerWorker; i++ {
				key := worker<<32 | i
				if err := database.Set(key, key); err != nil {
					t.Errorf("Worker %d: Set failed: %v", worker, err)
					return
				}
				if v, ok := database.Get(key); !ok || v != key {
					t.Errorf("Worker %d: read-your-write failed for %#x", worker, key)
				}
				if i%4 == 0 {
					database.Delete(key)
				}
			}
		}(uint64(w))
	}
	wg.Wait()

	expected := numWorkers * (keysPerWorker - keysPerWorker/4)
	if database.Len() != expected {
		t.Errorf("Expected Len %d after concurrent writes, got %d", expected, database.Len())
	}

	keys, _ := collect(database)
	if len(keys) != expected {
		t.Errorf("Range visited %d keys, expected %d", len(keys), expected)
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	type operation struct {
		op    string
		key   uint64
		value uint64
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)
	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "set"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		// a few hot keys next to many cold ones
		key := uint64(i) << 20
		if i%5 == 0 {
			key = uint64(i % 50)
		}
		operations[i] = operation{op, key, uint64(i) << (i % 40)}
	}

	numWorkers := 8
	opsPerWorker := numOperations / numWorkers
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for _, op := range operations[workerId*opsPerWorker : (workerId+1)*opsPerWorker] {
				switch op.op {
				case "set":
					if err := database.Set(op.key, op.value); err != nil {
						t.Errorf("Set failed: %v", err)
					}
				case "get":
					database.Get(op.key)
				case "delete":
					database.Delete(op.key)
				}
			}
		}(w)
	}
	wg.Wait()

	// after the writers are done every view of the database has to agree
	seen := 0
	var prev uint64
	ordered := database.SupportsFeature(db.FeatureOrderedRange)
	keys, values := collect(database)
	for i, k := range keys {
		if ordered && seen > 0 && k <= prev {
			t.Errorf("Range not ascending: %#x after %#x", k, prev)
		}
		if got, ok := database.Get(k); !ok || got != values[i] {
			t.Errorf("Range yielded (%#x, %d) but Get returned (%d, %v)", k, values[i], got, ok)
		}
		prev = k
		seen++
	}
	if seen != database.Len() {
		t.Errorf("Range visited %d keys but Len is %d", seen, database.Len())
	}
}

func testClose(t *testing.T, database db.KVDB) {
	mustSet(t, database, 1, 1)
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := database.Set(2, 2); err == nil {
		t.Errorf("Set after Close should fail")
	}
	if _, ok := database.Get(1); ok {
		t.Errorf("Get after Close should report exists=false")
	}
	if database.Len() != 0 {
		t.Errorf("Len after Close should be 0, got %d", database.Len())
	}
	if err := database.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}
