// Package util provides supporting components shared by the database engines,
// the registry and the command line tools.
//
// The package contains:
//   - statistics: shard distribution metrics and a SizeHistogram for sampling byte sizes
//   - functions: seeds and key mixing used by workload generators
//   - mapheap: a min-priority queue with key-based access, used for k-way merging
//     of shard iterators and for lowest-first identifier recycling
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer queue used as
//     an asynchronous event feed
//
// None of the components depend on a particular db.KVDB implementation.
package util
