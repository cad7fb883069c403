package index

// frameDirMask selects the next digit to visit from an iterator frame. Node
// offsets are multiples of 64, which leaves the low bits free for it.
const frameDirMask = 0x1f

// Iterator walks an index depth first and yields its pairs in strictly
// ascending key order, one pair per call to Next. It holds offsets only, so
// arena growth caused by overwriting existing keys does not disturb it.
// Adding or removing a key invalidates it; the next call to Next panics.
//
// Thread-safety: An Iterator must not be used concurrently with any other
// operation on its index.
type Iterator struct {
	trie    *Trie
	stack   [rootPosition]uint32 // node offset | next digit
	sp      int
	version uint64
}

// Start rewinds the iterator to the smallest key.
func (it *Iterator) Start() {
	it.sp = 0
	it.version = it.trie.version
	words := it.trie.words()
	if len(words) > 0 && isChild(words[rootSlot]) {
		it.stack[0] = childOffset(words[rootSlot])
		it.sp = 1
	}
}

// Next returns the next pair. ok is false once the index is exhausted.
func (it *Iterator) Next() (key, value uint64, ok bool) {
	if it.version != it.trie.version {
		panic("index: iterator used after the index was modified")
	}
	words := it.trie.words()
	for it.sp > 0 {
		frame := it.stack[it.sp-1]
		it.stack[it.sp-1]++
		dir := frame & frameDirMask
		if dir >= nodeSlots {
			it.sp--
			continue
		}
		node := frame &^ frameDirMask
		slot := node/4 + dir
		sval := words[slot]
		switch {
		case isChild(sval):
			it.stack[it.sp] = childOffset(sval)
			it.sp++
		case occupied(sval):
			return it.trie.prefix(node) | uint64(dir), it.trie.alloc.value(slot), true
		}
	}
	return 0, 0, false
}
