package index

import "math/bits"

// --------------------------------------------------------------------------
// Record layout
// --------------------------------------------------------------------------

const (
	nodeSlots    = 16                  // slots per node, one per nibble value
	nodeWords    = nodeSlots           // a slot is one uint32 word
	nodeSize     = nodeWords * 4       // bytes per node record
	cellSize     = 8                   // bytes per boxed value cell
	cellsPerNode = nodeSize / cellSize // cells carved from one node-sized block

	rootSlot     = 0  // word index of the root slot (slot 0 of the header record)
	rootPosition = 16 // position above every real digit position
)

// Slot word bits. The low nibble of every slot belongs to the owning node's
// prefix, so slot writes must preserve it.
const (
	slotPrefixMask uint32 = 0x0000000f
	slotNode       uint32 = 0x00000010
	slotScalar     uint32 = 0x00000020
	slotValueMask  uint32 = 0xffffffe0
	slotShift             = 6

	// inlineLimit is the first value that no longer fits the spare bits of a slot.
	inlineLimit uint64 = 1 << (32 - slotShift)
)

// Arena sizing.
const (
	DefaultMaxArenaBytes = 512 << 20 // 512 MiB, the largest region a boxed cell index can address
	minArenaBytes        = 2 << 10
	defaultCapacity      = 8
)

// --------------------------------------------------------------------------
// Slot predicates
// --------------------------------------------------------------------------

// occupied reports whether a slot holds a child or a value.
func occupied(sval uint32) bool { return sval&^slotPrefixMask != 0 }

func isChild(sval uint32) bool { return sval&slotNode != 0 }

// isBoxed reports whether a value slot references a cell of the value pool.
func isBoxed(sval uint32) bool { return sval&(slotNode|slotScalar) == 0 && sval>>slotShift != 0 }

// childOffset returns the byte offset of the node a child slot references.
func childOffset(sval uint32) uint32 { return sval & slotValueMask }

// cellIndex returns the index of the uint64 cell a boxed slot references.
func cellIndex(sval uint32) uint32 { return sval >> slotShift }

// --------------------------------------------------------------------------
// Key arithmetic
// --------------------------------------------------------------------------

// digit returns the nibble of key at digit position pos.
func digit(key uint64, pos uint32) uint32 {
	return uint32(key>>(pos*4)) & 0xf
}

// highestNibble returns the position of the most significant non-zero
// nibble of x (0 for x == 0).
func highestNibble(x uint64) uint32 {
	return uint32(bits.Len64(x|1)-1) >> 2
}

// prefixAbove clears the nibble at pos and every nibble below it.
func prefixAbove(key uint64, pos uint32) uint64 {
	return key &^ (uint64(1)<<((pos+1)*4) - 1)
}

// ceilPow2 returns the smallest power of two >= x.
func ceilPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len64(x-1)
}
