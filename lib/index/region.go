package index

import "unsafe"

// region is the backing memory of an arena. The same memory is viewed as
// uint32 slot words and as uint64 value cells.
type region struct {
	cells []uint64
	words []uint32
	free  func() error
}

// regionProvider hands out zeroed regions of the requested byte size.
type regionProvider interface {
	alloc(size uint64) (region, error)
}

// heapProvider allocates regions on the Go heap.
type heapProvider struct{}

func (heapProvider) alloc(size uint64) (region, error) {
	cells := make([]uint64, size/cellSize)
	return newRegion(cells, nil), nil
}

func newRegion(cells []uint64, free func() error) region {
	words := unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(cells))), len(cells)*2)
	return region{cells: cells, words: words, free: free}
}

func (r region) size() uint64 { return uint64(len(r.cells)) * cellSize }

func (r region) release() error {
	if r.free == nil {
		return nil
	}
	return r.free()
}

// providerFor picks the provider for the given options.
func providerFor(offHeap bool) regionProvider {
	if offHeap {
		return mmapProvider{}
	}
	return heapProvider{}
}
