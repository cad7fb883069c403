package internal

import (
	"github.com/ValentinKolb/nibble/lib/index"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database. The index of a shard is not
// safe for concurrent use, every access goes through Lock.
type Shard struct {
	Lock *xsync.RBMutex
	Data *index.Map
}

// NewShard creates a shard backed by a fresh index
func NewShard(opts *index.Options) (*Shard, error) {
	data, err := index.New(opts)
	if err != nil {
		return nil, err
	}
	return &Shard{
		Lock: xsync.NewRBMutex(),
		Data: data,
	}, nil
}

// Read runs fn with the shard read-locked
func (s *Shard) Read(fn func(m *index.Map)) {
	t := s.Lock.RLock()
	defer s.Lock.RUnlock(t)
	fn(s.Data)
}

// Write runs fn with the shard exclusively locked
func (s *Shard) Write(fn func(m *index.Map)) {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	fn(s.Data)
}

// ShardIndex returns the position of the shard responsible for key.
//
// The low 7 bits are dropped so that runs of 128 consecutive keys share one
// shard and the index of that shard keeps its leaves dense.
func ShardIndex(key uint64, numShards int) int {
	return int((key >> 7) % uint64(numShards))
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key uint64, shards []*T) *T {
	return shards[ShardIndex(key, len(shards))]
}
