package index

import "fmt"

// --------------------------------------------------------------------------
// Trie
// --------------------------------------------------------------------------

// Trie is a radix-16, path-compressed trie over uint64 keys. Every node
// branches on one nibble (its position, counted from the least significant
// nibble) and records the key bits above that nibble as its prefix, so chains
// of single-child levels are never materialized. Nodes at position 0 are
// leaves whose slots hold values.
type Trie struct {
	alloc *Allocator

	// version changes whenever a key is added or removed
	version uint64
}

// maxDepth bounds the length of any root-to-leaf path: positions strictly
// decrease from the root sentinel down to 0.
const maxDepth = rootPosition + 1

func (t *Trie) words() []uint32 { return t.alloc.arena.mem.words }

// position returns the digit position a node branches on.
func (t *Trie) position(off uint32) uint32 {
	return t.words()[off/4] & slotPrefixMask
}

// prefix returns the prefix of a node. The low nibble, always zero in the
// real prefix, carries the position.
func (t *Trie) prefix(off uint32) uint64 {
	var p uint64
	for i, s := range t.words()[off/4 : off/4+nodeWords] {
		p |= uint64(s&slotPrefixMask) << (4 * i)
	}
	return p
}

func (t *Trie) setPrefix(off uint32, p uint64) {
	w := t.words()[off/4 : off/4+nodeWords]
	for i := range w {
		w[i] = w[i]&^slotPrefixMask | uint32(p>>(4*i))&slotPrefixMask
	}
}

// lookup returns the slot holding the value of key.
func (t *Trie) lookup(key uint64) (uint32, bool) {
	words := t.words()
	slot, node, pos := uint32(rootSlot), uint32(0), uint32(rootPosition)
	for {
		sval := words[slot]
		if !isChild(sval) {
			if pos != 0 || !occupied(sval) || t.prefix(node) != key&^0xf {
				return 0, false
			}
			return slot, true
		}
		node = childOffset(sval)
		pos = words[node/4] & slotPrefixMask
		slot = node/4 + digit(key, pos)
	}
}

// insert returns the slot for key, creating the leaf and any branching node
// it needs. created reports whether the slot was empty. All allocations are
// reserved before the first structural change, so on error the trie is
// unchanged.
func (t *Trie) insert(key uint64) (slot uint32, created bool, err error) {
	var (
		slots [maxDepth + 1]uint32
		posns [maxDepth + 1]uint32
		sp    int
	)

	words := t.words()
	node, pos := uint32(0), uint32(rootPosition)
	slot = rootSlot

	var prfx uint64
	for {
		sval := words[slot]
		slots[sp], posns[sp] = slot, pos
		sp++
		if !isChild(sval) {
			if pos != rootPosition {
				prfx = t.prefix(node)
				if pos == 0 && prfx == key&^0xf {
					if !occupied(sval) {
						t.version++
					}
					return slot, !occupied(sval), nil
				}
			}
			break
		}
		node = childOffset(sval)
		pos = words[node/4] & slotPrefixMask
		slot = node/4 + digit(key, pos)
	}

	if err := t.alloc.Reserve(2, 0); err != nil {
		return 0, false, err
	}

	// find the deepest slot on the path whose node branches at or above
	// the highest nibble in which key leaves the existing prefix
	diff := highestNibble(prfx ^ key)
	i := sp
	for diff > pos {
		i--
		pos = posns[i]
	}

	var leaf uint32
	if i != sp {
		slot = slots[i]
		old := t.words()[slot]
		if !isChild(old) {
			panic(fmt.Sprintf("index: splice point %d is not a child slot", slot))
		}
		branch := t.mustAlloc()
		leaf = t.mustAlloc()

		w := t.words()
		w[slot] = w[slot]&slotPrefixMask | slotNode | branch
		w[branch/4+digit(prfx, diff)] = old &^ slotPrefixMask
		w[branch/4+digit(key, diff)] = slotNode | leaf
		t.setPrefix(branch, prefixAbove(prfx, diff)|uint64(diff))
	} else {
		leaf = t.mustAlloc()
		w := t.words()
		w[slot] = w[slot]&slotPrefixMask | slotNode | leaf
	}
	t.setPrefix(leaf, key&^0xf)
	t.version++
	return leaf/4 + uint32(key&0xf), true, nil
}

// mustAlloc allocates a node after a successful reservation.
func (t *Trie) mustAlloc() uint32 {
	off, err := t.alloc.allocNode()
	if err != nil {
		panic(fmt.Sprintf("index: node allocation failed after reservation: %v", err))
	}
	return off
}

// remove deletes key and collapses every node on its path that is left with
// no value (leaves) or a single child (branching nodes). The parent slot of a
// collapsed branching node is rewritten to point at the surviving child.
func (t *Trie) remove(key uint64) (uint64, bool) {
	var (
		path [maxDepth]uint32 // slots referencing the nodes on the path
		sp   int
	)

	words := t.words()
	slot, node, pos := uint32(rootSlot), uint32(0), uint32(rootPosition)
	for {
		sval := words[slot]
		if !isChild(sval) {
			break
		}
		path[sp] = slot
		sp++
		node = childOffset(sval)
		pos = words[node/4] & slotPrefixMask
		slot = node/4 + digit(key, pos)
	}
	if pos != 0 || !occupied(words[slot]) || t.prefix(node) != key&^0xf {
		return 0, false
	}

	prev := t.alloc.clearValue(slot)
	t.version++

	for sp > 0 {
		sp--
		ref := path[sp]
		off := childOffset(words[ref])
		count, last := t.population(off)
		want := 0
		if t.position(off) != 0 {
			want = 1
		}
		if count != want {
			break
		}
		t.alloc.freeNode(off)
		words[ref] = words[ref]&slotPrefixMask | last&^slotPrefixMask
	}
	return prev, true
}

// population counts the occupied slots of a node and returns the last one.
func (t *Trie) population(off uint32) (count int, last uint32) {
	for _, s := range t.words()[off/4 : off/4+nodeWords] {
		if occupied(s) {
			count++
			last = s
		}
	}
	return count, last
}

// liveNodes returns the number of node records currently part of the trie.
func (t *Trie) liveNodes() int {
	handed := int(t.alloc.arena.mark/nodeSize) - 1
	return handed - t.alloc.freeNodes - t.alloc.valueBlocks
}
