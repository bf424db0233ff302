package slot

import "fmt"

// Borrow is a pointer into a store together with the store epoch it was
// taken at. The epoch moves on every allocation, free, compaction, swap and
// close, which are the operations that can leave the pointer referring to a
// stale copy of the slot or to a slot that no longer holds the value.
type Borrow[T any] struct {
	ptr    *T
	store  *Store[T]
	handle Handle
	epoch  uint64
}

// Borrow validates h and returns a checked pointer to its value.
func (s *Store[T]) Borrow(h Handle) (Borrow[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.validate(opGet, h)
	if err != nil {
		return Borrow[T]{}, err
	}
	return Borrow[T]{ptr: &s.data[i], store: s, handle: h, epoch: s.epoch.Load()}, nil
}

// Valid reports whether nothing has invalidated the pointer since the borrow.
func (b Borrow[T]) Valid() bool {
	return b.store != nil && b.store.epoch.Load() == b.epoch
}

// Handle returns the handle the pointer was borrowed through.
func (b Borrow[T]) Handle() Handle {
	return b.handle
}

// Ptr returns the borrowed pointer. Builds tagged slotdebug panic when the
// borrow is no longer valid.
func (b Borrow[T]) Ptr() *T {
	if b.store == nil {
		return nil
	}
	if DebugChecks && !b.Valid() {
		panic(fmt.Sprintf("slot: %s borrowed from store %q used after the store was modified", b.handle, b.store.name))
	}
	return b.ptr
}
