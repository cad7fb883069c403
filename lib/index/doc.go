// Package index implements an embedded associative index from sparse uint64
// keys to uint64 values: a radix-16, path-compressed trie whose nodes and boxed
// values live in a single arena managed by two intrusive free lists.
//
// The package focuses on:
//   - O(key length) insert, lookup and delete with no per-key heap allocation
//   - Relocatable storage: every internal reference is an arena offset
//   - Ordered traversal through a resumable, explicit-stack iterator
//   - Immediate reuse of freed nodes and value cells
//
// Key Components:
//
//   - Arena: one contiguous region of 64-byte records addressed by byte
//     offset. It grows by allocating a region of the next power of two,
//     copying everything below the high-water mark and releasing the old
//     region. Growth beyond the ceiling (512 MiB by default) fails with
//     ErrArenaFull. Regions come from the Go heap or, with Options.OffHeap,
//     from anonymous memory mappings.
//
//   - Allocator: node records and 8-byte value cells, each with its own free
//     list threaded through the freed records. Value cells are carved eight at
//     a time out of a node-sized block. Reserve guarantees that a given number
//     of allocations will succeed, which lets the trie perform every
//     allocation check before its first structural change.
//
//   - Trie: 16 slots per node, one per nibble. A slot is empty, a child
//     reference or a value. Values below 2^26 are stored inline in the slot,
//     larger ones in a boxed cell. Each node records the nibble position it
//     branches on and the key bits above it (its prefix); the prefix is spread
//     over the low nibble of the node's 16 slots. Deleting the last value of a
//     leaf frees the leaf, and a branching node left with a single child is
//     replaced by that child, so the height of the trie always matches the
//     number of nibbles that actually distinguish the stored keys.
//
//   - Iterator: a stack of (node, next digit) frames visited in ascending
//     digit order, which yields keys in strictly ascending order.
//
//   - Map: couples a trie with a logical count and an advisory capacity that
//     doubles, pre-growing the arena, whenever an insert would exceed it.
//
// A Map is single-owner. It never locks and never blocks; hosts that need
// concurrent access serialize it themselves (see the engines/trie package for
// a sharded, lock-protected engine built on it).
//
// Example usage:
//
//	m, err := index.New(nil)
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	_ = m.Set(0x101, 30)
//	v, ok := m.Get(0x101)
//
//	for k, v := range m.All() {
//		fmt.Printf("%#x = %d\n", k, v)
//	}
package index
