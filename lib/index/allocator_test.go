package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, max uint64) *Allocator {
	t.Helper()
	arena, err := newArena(minArenaBytes, max, heapProvider{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = arena.release() })
	return newAllocator(arena)
}

func TestAllocatorNodeReuse(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)

	first, err := a.allocNode()
	require.NoError(t, err)
	require.Equal(t, uint32(nodeSize), first)

	second, err := a.allocNode()
	require.NoError(t, err)
	require.Equal(t, uint32(2*nodeSize), second)

	a.arena.mem.words[first/4+3] = 0xdead
	a.freeNode(first)
	require.Equal(t, 1, a.freeNodes)

	again, err := a.allocNode()
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.Equal(t, 0, a.freeNodes)
	for _, w := range a.arena.mem.words[again/4 : again/4+nodeWords] {
		require.Zero(t, w)
	}
	require.Equal(t, uint32(3*nodeSize), a.arena.Mark())
}

func TestAllocatorFreeInvalidNodePanics(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)
	require.Panics(t, func() { a.freeNode(0) })
	require.Panics(t, func() { a.freeNode(nodeSize + 4) })
}

func TestAllocatorCellCarving(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)
	require.Equal(t, cellsPerNode-1, a.freeCells)

	// the header record provides cells 1..7
	for i := uint32(1); i < cellsPerNode; i++ {
		sval, err := a.allocCell()
		require.NoError(t, err)
		require.Equal(t, i<<slotShift, sval)
	}
	require.Zero(t, a.freeCells)
	require.Zero(t, a.valueBlocks)

	sval, err := a.allocCell()
	require.NoError(t, err)
	require.Equal(t, 1, a.valueBlocks)
	require.Equal(t, cellsPerNode-1, a.freeCells)
	require.Equal(t, uint32(nodeSize/cellSize)<<slotShift, sval)
	require.Equal(t, uint32(2*nodeSize), a.arena.Mark())
}

func TestAllocatorFreeCellReturnsContents(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)

	sval, err := a.allocCell()
	require.NoError(t, err)
	a.arena.mem.cells[cellIndex(sval)] = 42

	require.Equal(t, uint64(42), a.freeCell(sval))

	again, err := a.allocCell()
	require.NoError(t, err)
	require.Equal(t, sval, again)
	require.Panics(t, func() { a.freeCell(slotScalar | 1<<slotShift) })
}

func TestReserveGrowsOnce(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)
	require.Equal(t, uint64(minArenaBytes), a.arena.Size())

	require.NoError(t, a.Reserve(100, 0))
	require.Equal(t, uint64(8192), a.arena.Size())
	require.Equal(t, 1, a.arena.growths)

	for i := 0; i < 100; i++ {
		_, err := a.allocNode()
		require.NoError(t, err)
	}
	require.Equal(t, 1, a.arena.growths)

	// freed nodes count towards a reservation
	a.freeNode(nodeSize)
	require.NoError(t, a.Reserve(1, 0))
	require.Equal(t, 1, a.arena.growths)
}

func TestReserveCountsCellBlocks(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)
	require.NoError(t, a.Reserve(0, cellsPerNode-1))
	require.Equal(t, 0, a.arena.growths)

	// 7 free cells in the header, 64 more need 8 blocks
	require.NoError(t, a.Reserve(20, 71))
	mark := uint64(a.arena.Mark())
	require.GreaterOrEqual(t, a.arena.Size(), mark+28*nodeSize)
}

func TestReserveCeiling(t *testing.T) {
	a := newTestAllocator(t, 4096)

	err := a.Reserve(100, 0)
	require.ErrorIs(t, err, ErrArenaFull)
	require.Equal(t, uint64(minArenaBytes), a.arena.Size())
	require.Zero(t, a.arena.growths)

	require.NoError(t, a.Reserve(40, 0))
	require.Equal(t, uint64(4096), a.arena.Size())
}

func TestGrowthPreservesContents(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)

	off, err := a.allocNode()
	require.NoError(t, err)
	for i := uint32(0); i < nodeWords; i++ {
		a.arena.mem.words[off/4+i] = i*7 + 1
	}
	cell, err := a.allocCell()
	require.NoError(t, err)
	a.arena.mem.cells[cellIndex(cell)] = math.MaxUint64

	require.NoError(t, a.arena.ensure(1<<20))
	require.Equal(t, uint64(1<<20), a.arena.Size())

	for i := uint32(0); i < nodeWords; i++ {
		require.Equal(t, i*7+1, a.arena.mem.words[off/4+i])
	}
	require.Equal(t, uint64(math.MaxUint64), a.arena.mem.cells[cellIndex(cell)])
}

func TestSetValueInlineAndBoxed(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)

	off, err := a.allocNode()
	require.NoError(t, err)
	slot := off/4 + 3
	a.arena.mem.words[slot] = 0xa // prefix nibble owned by the node

	require.NoError(t, a.setValue(slot, 5))
	require.False(t, isBoxed(a.arena.mem.words[slot]))
	require.Equal(t, uint64(5), a.value(slot))
	free := a.freeCells

	require.NoError(t, a.setValue(slot, 1<<40))
	require.True(t, isBoxed(a.arena.mem.words[slot]))
	require.Equal(t, uint64(1<<40), a.value(slot))
	require.Equal(t, free-1, a.freeCells)

	require.NoError(t, a.setValue(slot, math.MaxUint64))
	require.Equal(t, uint64(math.MaxUint64), a.value(slot))
	require.Equal(t, free-1, a.freeCells)

	require.NoError(t, a.setValue(slot, inlineLimit-1))
	require.False(t, isBoxed(a.arena.mem.words[slot]))
	require.Equal(t, free, a.freeCells)

	require.Equal(t, inlineLimit-1, a.clearValue(slot))
	require.False(t, occupied(a.arena.mem.words[slot]))
	require.Equal(t, uint32(0xa), a.arena.mem.words[slot])
}

func TestZeroValueIsOccupied(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)
	off, err := a.allocNode()
	require.NoError(t, err)

	require.NoError(t, a.setValue(off/4, 0))
	require.True(t, occupied(a.arena.mem.words[off/4]))
	require.Zero(t, a.value(off/4))
}

func TestSetValueOnChildPanics(t *testing.T) {
	a := newTestAllocator(t, DefaultMaxArenaBytes)
	off, err := a.allocNode()
	require.NoError(t, err)
	a.arena.mem.words[off/4] = slotNode | 2*nodeSize

	require.Panics(t, func() { _ = a.setValue(off/4, 1) })
	require.Panics(t, func() { a.value(off / 4) })
}

func TestFitsDoesNotTouchArena(t *testing.T) {
	a := newTestAllocator(t, 4096)

	require.False(t, a.fits(100, 0))
	require.True(t, a.fits(40, 0))
	require.True(t, a.fits(0, cellsPerNode-1))
	require.Zero(t, a.arena.refusals)
	require.Zero(t, a.arena.growths)
	require.Equal(t, uint64(minArenaBytes), a.arena.Size())

	require.ErrorIs(t, a.Reserve(100, 0), ErrArenaFull)
	require.Equal(t, 1, a.arena.refusals)
}
