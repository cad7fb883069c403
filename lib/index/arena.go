package index

import (
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("index")

// --------------------------------------------------------------------------
// Arena
// --------------------------------------------------------------------------

// Arena is a single growable region of fixed-size records addressed by byte
// offset. Offsets stay valid when the region is relocated on growth.
//
// Thread-safety: An Arena is owned by exactly one index and is not safe for
// concurrent use.
type Arena struct {
	provider regionProvider
	mem      region
	mark     uint32 // high-water mark in bytes, every record below it has been handed out once
	max      uint64 // ceiling in bytes
	growths  int
	refusals int // ensure calls rejected at the ceiling
}

// newArena creates an arena of at least size bytes with the header record
// already accounted for.
func newArena(size, max uint64, provider regionProvider) (*Arena, error) {
	a := &Arena{
		provider: provider,
		mark:     nodeSize,
		max:      max,
	}
	size = ceilPow2(size)
	if size < minArenaBytes {
		size = minArenaBytes
	}
	if size > max {
		return nil, fmt.Errorf("%w: initial size %d bytes, ceiling is %d", ErrArenaFull, size, max)
	}
	mem, err := provider.alloc(size)
	if err != nil {
		return nil, err
	}
	a.mem = mem
	return a, nil
}

// Size returns the current region size in bytes.
func (a *Arena) Size() uint64 { return a.mem.size() }

// Mark returns the high-water mark in bytes.
func (a *Arena) Mark() uint32 { return a.mark }

// ensure grows the region so that it holds at least required bytes. The new
// size is the next power of two of required. On failure nothing changes.
func (a *Arena) ensure(required uint64) error {
	if a.mem.cells == nil {
		return ErrClosed
	}
	if required <= a.mem.size() {
		return nil
	}
	if required > a.max {
		a.refusals++
		plog.Warningf("arena growth refused: need %d bytes, ceiling is %d", required, a.max)
		return fmt.Errorf("%w: need %d bytes, ceiling is %d", ErrArenaFull, required, a.max)
	}
	size := ceilPow2(required)
	if size > a.max {
		size = a.max
	}

	next, err := a.provider.alloc(size)
	if err != nil {
		return err
	}
	copy(next.words[:a.mark/4], a.mem.words[:a.mark/4])

	prev := a.mem
	a.mem = next
	a.growths++
	if err := prev.release(); err != nil {
		plog.Errorf("failed to release arena region of %d bytes: %v", prev.size(), err)
	}
	plog.Debugf("arena grown from %d to %d bytes (mark %d)", prev.size(), size, a.mark)
	return nil
}

// bump hands out the next never-used record, growing the region if needed.
func (a *Arena) bump() (uint32, error) {
	if err := a.ensure(uint64(a.mark) + nodeSize); err != nil {
		return 0, err
	}
	off := a.mark
	a.mark += nodeSize
	return off, nil
}

// release frees the whole region in one step.
func (a *Arena) release() error {
	if a.mem.cells == nil {
		return nil
	}
	err := a.mem.release()
	a.mem = region{}
	return err
}
