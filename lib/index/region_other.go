//go:build !unix

package index

// mmapProvider falls back to the Go heap on platforms without mmap.
type mmapProvider struct{}

func (mmapProvider) alloc(size uint64) (region, error) {
	return heapProvider{}.alloc(size)
}
