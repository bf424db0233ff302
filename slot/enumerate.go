package slot

import "iter"

// Enumerator walks a store by index. It is a plain value; stepping it does
// not allocate.
type Enumerator[T any] struct {
	store       *Store[T]
	includeFree bool
	index       int
	handle      Handle
	value       *T
}

// Enumerate returns an enumerator positioned before the first slot. With
// includeFree set, free slots are visited too and report the zero Handle.
func (s *Store[T]) Enumerate(includeFree bool) Enumerator[T] {
	return Enumerator[T]{store: s, includeFree: includeFree, index: -1}
}

// Next advances to the next slot and reports whether there is one.
func (e *Enumerator[T]) Next() bool {
	s := e.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for e.index+1 < s.length {
		e.index++
		h := s.tracker[e.index]
		if !h.Allocated() && !e.includeFree {
			continue
		}
		e.handle = h
		e.value = &s.data[e.index]
		return true
	}
	e.handle = invalidHandle
	e.value = nil
	return false
}

// Index returns the slot index of the current position.
func (e *Enumerator[T]) Index() int {
	return e.index
}

// Handle returns the handle of the current slot, or the zero Handle for a free slot.
func (e *Enumerator[T]) Handle() Handle {
	return e.handle
}

// Value returns a pointer to the current slot's value. The same rules as
// Store.Get apply.
func (e *Enumerator[T]) Value() *T {
	return e.value
}

// All returns an iterator over allocated slots in index order.
func (s *Store[T]) All() iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		e := s.Enumerate(false)
		for e.Next() {
			if !yield(e.Handle(), e.Value()) {
				return
			}
		}
	}
}

// Handles returns an iterator over the handles of allocated slots.
func (s *Store[T]) Handles() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		e := s.Enumerate(false)
		for e.Next() {
			if !yield(e.Handle()) {
				return
			}
		}
	}
}
