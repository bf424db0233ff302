package slot

// Sweep inspects up to n slots starting at index from, wrapping at Len, and
// frees every allocated slot for which reclaim returns true. It returns the
// index to resume from on the next call and the number of slots freed.
//
// reclaim runs with the store lock held and must not call back into s.
func (s *Store[T]) Sweep(from, n int, reclaim func(Handle, *T) bool) (next, freed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.length == 0 || n <= 0 {
		return 0, 0
	}
	n = min(n, s.length)
	i := from
	if i < 0 || i >= s.length {
		i = 0
	}

	for range n {
		if h := s.tracker[i]; h.Allocated() && reclaim(h, &s.data[i]) {
			s.release(i)
			freed++
		}
		i++
		if i >= s.length {
			i = 0
		}
	}
	if freed > 0 {
		s.observe()
		s.log.Debug().Int("freed", freed).Msg("sweep reclaimed slots")
	}
	return i, freed
}
