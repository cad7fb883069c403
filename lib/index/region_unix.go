//go:build unix

package index

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapProvider allocates regions outside the Go heap with anonymous private mappings.
type mmapProvider struct{}

func (mmapProvider) alloc(size uint64) (region, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return region{}, fmt.Errorf("%w: mmap %d bytes: %v", ErrRegion, size, err)
	}
	cells := unsafe.Slice((*uint64)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/cellSize)
	return newRegion(cells, func() error { return unix.Munmap(b) }), nil
}
