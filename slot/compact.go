package slot

// Compact moves allocated slots down into free indices so that the live
// slots occupy [0, Count). Capacity is kept.
//
// Every handle listed as Move.Old is stale once Compact returns. The store
// cannot reach copies of handles held elsewhere; callers apply the returned
// moves to their own data.
func (s *Store[T]) Compact() ([]Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	var moves []Move
	var zero T
	cursor := s.lastOccupied
	it := s.free.Iterator()
	for it.HasNext() {
		dst := int(it.Next())
		if dst >= cursor {
			break
		}

		old := s.tracker[cursor]
		moved := old.withIndex(uint32(dst))
		s.data[dst] = s.data[cursor]
		s.tracker[dst] = moved
		s.data[cursor] = zero
		s.tracker[cursor] = invalidHandle
		moves = append(moves, Move{Old: old, New: moved})

		cursor--
		for cursor > dst && !s.tracker[cursor].Allocated() {
			cursor--
		}
	}

	oldLen := s.length
	s.free.Clear()
	s.lastOccupied = cursor
	s.length = cursor + 1
	if len(moves) > 0 {
		s.epoch.Add(1)
	}

	s.metrics.compacted(len(moves))
	s.observe()
	s.log.Debug().
		Int("moved", len(moves)).
		Int("old_len", oldLen).
		Int("new_len", s.length).
		Msg("slot store compacted")
	return moves, nil
}

// SwapSlots exchanges the values and tracker entries of a and b. Each value
// keeps its version and takes the other's index; the returned handles refer
// to the values previously reachable through a and b respectively.
func (s *Store[T]) SwapSlots(a, b Handle) (Handle, Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ia, err := s.validate(opSwap, a)
	if err != nil {
		return invalidHandle, invalidHandle, err
	}
	ib, err := s.validate(opSwap, b)
	if err != nil {
		return invalidHandle, invalidHandle, err
	}
	if ia == ib {
		return a, b, nil
	}

	s.data[ia], s.data[ib] = s.data[ib], s.data[ia]
	newA := a.withIndex(uint32(ib))
	newB := b.withIndex(uint32(ia))
	s.tracker[ib] = newA
	s.tracker[ia] = newB
	s.epoch.Add(1)
	return newA, newB, nil
}
