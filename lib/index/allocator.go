package index

import "fmt"

// --------------------------------------------------------------------------
// Allocator
// --------------------------------------------------------------------------

// Allocator layers two intrusive free lists over an Arena: one for node
// records and one for 8-byte value cells. Freed records store the link to the
// next free record in their own first word, and list heads are offsets, so
// both lists survive relocation of the region.
type Allocator struct {
	arena *Arena

	nodeFree uint32 // byte offset of the first free node, 0 if none
	cellFree uint32 // slot encoding of the first free cell, 0 if none

	freeNodes   int
	freeCells   int
	valueBlocks int // node records carved into value cells
}

// newAllocator creates an allocator over a fresh arena. Cells 1..7 of the
// header record seed the value free list; cell 0 holds the root slot.
func newAllocator(arena *Arena) *Allocator {
	a := &Allocator{arena: arena}
	cells := arena.mem.cells
	for i := uint32(1); i < cellsPerNode-1; i++ {
		cells[i] = uint64(i+1) << slotShift
	}
	cells[cellsPerNode-1] = 0
	a.cellFree = 1 << slotShift
	a.freeCells = cellsPerNode - 1
	return a
}

// Reserve makes sure the next allocations of nodes node records and cells
// value cells succeed without touching the arena size. Growth, if any,
// happens here and nowhere in the middle of a structural change.
func (a *Allocator) Reserve(nodes, cells int) error {
	required := a.required(nodes, cells)
	if required == 0 {
		return nil
	}
	return a.arena.ensure(required)
}

// fits reports whether Reserve(nodes, cells) would stay below the ceiling.
// It neither grows the arena nor logs.
func (a *Allocator) fits(nodes, cells int) bool {
	return a.required(nodes, cells) <= a.arena.max
}

// required returns the region size Reserve(nodes, cells) needs, or 0 if the
// free lists already cover it.
func (a *Allocator) required(nodes, cells int) uint64 {
	need := nodes
	if short := cells - a.freeCells; short > 0 {
		need += (short + cellsPerNode - 1) / cellsPerNode
	}
	need -= a.freeNodes
	if need <= 0 {
		return 0
	}
	return uint64(a.arena.mark) + uint64(need)*nodeSize
}

// allocNode returns the offset of a zeroed node record.
func (a *Allocator) allocNode() (uint32, error) {
	if off := a.nodeFree; off != 0 {
		words := a.arena.mem.words
		a.nodeFree = words[off/4]
		a.freeNodes--
		clear(words[off/4 : off/4+nodeWords])
		return off, nil
	}
	// bumped records have never been written
	return a.arena.bump()
}

// freeNode pushes a node record onto the node free list.
func (a *Allocator) freeNode(off uint32) {
	if off == 0 || off%nodeSize != 0 {
		panic(fmt.Sprintf("index: freeing invalid node offset %d", off))
	}
	a.arena.mem.words[off/4] = a.nodeFree
	a.nodeFree = off
	a.freeNodes++
}

// allocCell returns the slot encoding of a free value cell, carving a new
// block of cells from a node record when the value free list is empty.
func (a *Allocator) allocCell() (uint32, error) {
	if a.cellFree == 0 {
		off, err := a.allocNode()
		if err != nil {
			return 0, err
		}
		a.carve(off)
	}
	sval := a.cellFree
	a.cellFree = uint32(a.arena.mem.cells[cellIndex(sval)])
	a.freeCells--
	return sval, nil
}

// carve threads the cells of the node record at off onto the value free list.
func (a *Allocator) carve(off uint32) {
	first := off / cellSize
	cells := a.arena.mem.cells
	for i := uint32(0); i < cellsPerNode-1; i++ {
		cells[first+i] = uint64(first+i+1) << slotShift
	}
	cells[first+cellsPerNode-1] = uint64(a.cellFree)
	a.cellFree = first << slotShift
	a.freeCells += cellsPerNode
	a.valueBlocks++
}

// freeCell pushes a cell onto the value free list and returns what it held.
func (a *Allocator) freeCell(sval uint32) uint64 {
	if !isBoxed(sval) {
		panic(fmt.Sprintf("index: freeing non-boxed slot %#x", sval))
	}
	i := cellIndex(sval)
	prev := a.arena.mem.cells[i]
	a.arena.mem.cells[i] = uint64(a.cellFree)
	a.cellFree = sval & slotValueMask
	a.freeCells++
	return prev
}

// --------------------------------------------------------------------------
// Value slots
// --------------------------------------------------------------------------

// value returns the value held by a value slot.
func (a *Allocator) value(slot uint32) uint64 {
	sval := a.arena.mem.words[slot]
	if isChild(sval) {
		panic(fmt.Sprintf("index: reading value from child slot %d", slot))
	}
	if isBoxed(sval) {
		return a.arena.mem.cells[cellIndex(sval)]
	}
	return uint64(sval >> slotShift)
}

// setValue stores v in slot, inline when it fits and boxed otherwise. A cell
// that is no longer needed goes back to the free list. If a cell cannot be
// allocated the slot is left untouched.
func (a *Allocator) setValue(slot uint32, v uint64) error {
	sval := a.arena.mem.words[slot]
	if isChild(sval) {
		panic(fmt.Sprintf("index: storing value in child slot %d", slot))
	}
	keep := sval & slotPrefixMask

	if v < inlineLimit {
		if isBoxed(sval) {
			a.freeCell(sval)
		}
		a.arena.mem.words[slot] = keep | uint32(v)<<slotShift | slotScalar
		return nil
	}

	if !isBoxed(sval) {
		cell, err := a.allocCell()
		if err != nil {
			return err
		}
		sval = cell
	}
	a.arena.mem.words[slot] = keep | sval&slotValueMask
	a.arena.mem.cells[cellIndex(sval)] = v
	return nil
}

// clearValue empties a value slot and returns the value it held.
func (a *Allocator) clearValue(slot uint32) uint64 {
	v := a.value(slot)
	sval := a.arena.mem.words[slot]
	if isBoxed(sval) {
		a.freeCell(sval)
	}
	a.arena.mem.words[slot] = sval & slotPrefixMask
	return v
}

// needsCell reports whether storing v in slot would allocate a cell.
func (a *Allocator) needsCell(slot uint32, v uint64) bool {
	return v >= inlineLimit && !isBoxed(a.arena.mem.words[slot])
}
