// Package slot provides a generational slot allocator.
//
// A Store[T] keeps values in a growable array and hands out Handles instead
// of indices. A Handle carries the slot index, a 16-bit version and an
// allocated flag. Freeing a slot invalidates every handle issued for it: the
// next allocation that reuses the index stamps a different version, so stale
// handles are rejected with a *HandleError rather than reading someone
// else's data.
//
// # Allocation policy
//
// Free indices are kept in a roaring bitmap and the lowest one is reused
// first, which keeps live data packed toward the front of the array. When no
// index is free the arrays double in size.
//
// # Borrowed pointers
//
// Get returns a pointer into the backing array. The store lock is only held
// while the handle is validated, so the pointer is used unlocked and is only
// good until the next allocation, compaction or swap on the same store.
// Borrow wraps the pointer with the store epoch; in builds tagged slotdebug
// Borrow.Ptr panics once the epoch has moved.
//
// # Compaction
//
// Compact packs live slots into [0, Count) and returns the list of moves it
// made. Old handles of moved slots are stale afterwards. Anything outside the
// store that keeps handles must be rewritten from the returned moves:
//
//	moves, err := store.Compact()
//	if err != nil {
//	    return err
//	}
//	for _, m := range moves {
//	    index[key(m.Old)] = m.New
//	}
//
// # Version width
//
// Versions come from a per-store counter that wraps from 65535 back to 1. A
// handle kept across 65535 allocations on the same store can therefore alias
// a newer allocation of its index. This is a known limitation of the 16-bit
// layout.
package slot
