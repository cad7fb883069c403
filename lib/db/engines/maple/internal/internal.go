package internal

import (
	"github.com/ValentinKolb/nibble/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[uint64, uint64]
}

// NewShard creates a new shard whose map mixes keys with the given seed
func NewShard(seed uint64) *Shard {
	return &Shard{
		Data: xsync.NewMapOfWithHasher[uint64, uint64](func(key, mapSeed uint64) uint64 {
			return util.HashKey(key ^ seed ^ mapSeed)
		}),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key uint64, shards []*T) *T {
	// Shift right by 7 bits so that runs of ids stay on one shard
	return shards[(key>>7)%uint64(len(shards))]
}
