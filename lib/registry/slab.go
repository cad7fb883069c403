package registry

// slab hands out small integer handles for Go values so that the indexes,
// which store integers only, can refer to them. Released handles are reused
// last-in first-out.
type slab[T any] struct {
	items []T
	free  []uint64
}

func (s *slab[T]) put(v T) uint64 {
	if n := len(s.free); n > 0 {
		h := s.free[n-1]
		s.free = s.free[:n-1]
		s.items[h] = v
		return h
	}
	s.items = append(s.items, v)
	return uint64(len(s.items) - 1)
}

func (s *slab[T]) get(h uint64) T { return s.items[h] }

func (s *slab[T]) release(h uint64) {
	var zero T
	s.items[h] = zero
	s.free = append(s.free, h)
}

func (s *slab[T]) len() int { return len(s.items) - len(s.free) }
