// Package maple implements db.KVDB on sharded concurrent hash maps
// (xsync.MapOf). It has no ordered traversal and no arena ceiling and is kept
// as the baseline the trie engine is measured against.
//
// Keys are distributed across shards by (key >> 7) % shards, the same rule the
// trie engine uses, and mixed with a per-instance seed inside each map.
package maple
