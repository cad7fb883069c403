package index

import "iter"

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Map during creation.
type Options struct {
	InitialCapacity int    // expected number of keys (0 = default of 8)
	MaxArenaBytes   uint64 // arena ceiling in bytes (0 = DefaultMaxArenaBytes)
	OffHeap         bool   // back the arena with anonymous memory mappings instead of the Go heap
}

// DefaultOptions returns the default Map options.
func DefaultOptions() *Options {
	return &Options{
		InitialCapacity: defaultCapacity,
		MaxArenaBytes:   DefaultMaxArenaBytes,
	}
}

// --------------------------------------------------------------------------
// Map
// --------------------------------------------------------------------------

// Map is an associative index from uint64 keys to uint64 values backed by a
// single trie in a single arena. It keeps a logical count of live keys and an
// advisory capacity. When an insert would push the count past the capacity,
// the capacity doubles and the arena is grown for it before the insert.
//
// Thread-safety: A Map is not safe for concurrent use. Callers that share one
// across goroutines must serialize all access, iteration included.
type Map struct {
	trie     Trie
	count    int
	capacity int
}

// New creates an empty Map with the given options (optional).
func New(opts *Options) (*Map, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	capacity := opts.InitialCapacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	max := opts.MaxArenaBytes
	if max == 0 || max > DefaultMaxArenaBytes {
		max = DefaultMaxArenaBytes
	}
	max &^= nodeSize - 1

	arena, err := newArena(minArenaBytes, max, providerFor(opts.OffHeap))
	if err != nil {
		return nil, err
	}
	m := &Map{
		trie:     Trie{alloc: newAllocator(arena)},
		capacity: capacity,
	}
	if !m.canReserveFor(capacity) {
		// the capacity stays advisory, inserts reserve one at a time
		plog.Debugf("initial capacity %d exceeds the ceiling of %d bytes, not pre-growing", capacity, max)
		return m, nil
	}
	if err := m.reserveFor(capacity); err != nil {
		_ = arena.release()
		return nil, err
	}
	return m, nil
}

// reserveFor grows the arena for capacity further inserts: each may add a
// branching node, a leaf and a value cell.
func (m *Map) reserveFor(capacity int) error {
	return m.trie.alloc.Reserve(2*capacity, capacity)
}

// canReserveFor reports whether reserveFor(capacity) fits below the ceiling.
func (m *Map) canReserveFor(capacity int) bool {
	return m.trie.alloc.fits(2*capacity, capacity)
}

// Set stores value under key, replacing any previous value.
func (m *Map) Set(key, value uint64) error {
	if m.closed() {
		return ErrClosed
	}
	alloc := m.trie.alloc

	if slot, ok := m.trie.lookup(key); ok {
		if alloc.needsCell(slot, value) {
			if err := alloc.Reserve(0, 1); err != nil {
				return err
			}
		}
		return alloc.setValue(slot, value)
	}

	// doubling is skipped without a trace while it would pass the ceiling
	if m.count+1 > m.capacity && m.canReserveFor(m.capacity*2) {
		if err := m.reserveFor(m.capacity * 2); err == nil {
			m.capacity *= 2
		}
	}

	cells := 0
	if value >= inlineLimit {
		cells = 1
	}
	if err := alloc.Reserve(2, cells); err != nil {
		return err
	}
	slot, _, err := m.trie.insert(key)
	if err != nil {
		return err
	}
	if err := alloc.setValue(slot, value); err != nil {
		panic("index: value allocation failed after reservation: " + err.Error())
	}
	m.count++
	return nil
}

// Get returns the value stored under key.
func (m *Map) Get(key uint64) (uint64, bool) {
	if m.closed() {
		return 0, false
	}
	slot, ok := m.trie.lookup(key)
	if !ok {
		return 0, false
	}
	return m.trie.alloc.value(slot), true
}

// Has reports whether key is present.
func (m *Map) Has(key uint64) bool {
	if m.closed() {
		return false
	}
	_, ok := m.trie.lookup(key)
	return ok
}

// Delete removes key and returns the value it held.
func (m *Map) Delete(key uint64) (uint64, bool) {
	if m.count == 0 || m.closed() {
		return 0, false
	}
	prev, ok := m.trie.remove(key)
	if !ok {
		return 0, false
	}
	m.count--
	return prev, true
}

// Len returns the number of keys.
func (m *Map) Len() int { return m.count }

// Capacity returns the advisory capacity.
func (m *Map) Capacity() int { return m.capacity }

// Iterator returns an iterator positioned before the smallest key.
func (m *Map) Iterator() *Iterator {
	it := &Iterator{trie: &m.trie}
	it.Start()
	return it
}

// All returns the pairs of the map in ascending key order. The map must not
// gain or lose keys while the sequence is being consumed.
func (m *Map) All() iter.Seq2[uint64, uint64] {
	return func(yield func(uint64, uint64) bool) {
		if m.closed() {
			return
		}
		it := m.Iterator()
		for {
			k, v, ok := it.Next()
			if !ok || !yield(k, v) {
				return
			}
		}
	}
}

// Close releases the arena. The Map must not be used afterwards.
func (m *Map) Close() error {
	if m.closed() {
		return nil
	}
	m.count = 0
	m.trie.version++
	return m.trie.alloc.arena.release()
}

func (m *Map) closed() bool { return m.trie.alloc.arena.mem.cells == nil }

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats describes the memory held by a Map.
type Stats struct {
	Count       int    `json:"count"`
	Capacity    int    `json:"capacity"`
	ArenaBytes  uint64 `json:"arena_bytes"`
	MarkBytes   uint32 `json:"mark_bytes"`
	LiveNodes   int    `json:"live_nodes"`
	FreeNodes   int    `json:"free_nodes"`
	ValueBlocks int    `json:"value_blocks"`
	LiveCells   int    `json:"live_cells"`
	FreeCells   int    `json:"free_cells"`
	Growths     int    `json:"growths"`
}

// Stats returns the current memory statistics. A closed Map reports zeros.
func (m *Map) Stats() Stats {
	if m.closed() {
		return Stats{}
	}
	a := m.trie.alloc
	return Stats{
		Count:       m.count,
		Capacity:    m.capacity,
		ArenaBytes:  a.arena.Size(),
		MarkBytes:   a.arena.Mark(),
		LiveNodes:   m.trie.liveNodes(),
		FreeNodes:   a.freeNodes,
		ValueBlocks: a.valueBlocks,
		LiveCells:   (a.valueBlocks+1)*cellsPerNode - 1 - a.freeCells,
		FreeCells:   a.freeCells,
		Growths:     a.arena.growths,
	}
}
