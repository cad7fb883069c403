// Package db provides a standardized interface for databases that map uint64
// keys to uint64 values. It defines the KVDB interface that allows for
// consistent interaction with different engines while abstracting
// implementation details.
//
// The package focuses on:
//   - A unified interface for point operations and traversal
//   - Feature discovery through capability flags
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for point operations (Set, Get, Has, Delete), traversal
//     (Range), metadata retrieval (Len, GetInfo) and resource release (Close).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. FeatureOrderedRange marks
//     engines whose Range visits keys in ascending order.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the available engines ("trie" and "maple").
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state, including size, implementation type,
//     and implementation-specific metadata.
//
// Related Packages:
//
// The engines/trie package (github.com/ValentinKolb/nibble/lib/db/engines/trie) implements
// KVDB with a fixed number of shards, each holding one index.Map behind a reader-biased
// lock. Concurrent callers are safe; each shard's index is only ever touched by one writer.
//
// The engines/maple package implements KVDB on concurrent hash maps without ordered
// traversal. It is the baseline the trie engine is compared with.
//
// The util package (github.com/ValentinKolb/nibble/lib/db/util) provides complementary
// tools such as DistributionStats and SizeHistogram for reporting.
//
// The testing package (github.com/ValentinKolb/nibble/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
