package ref

import (
	"fmt"
	"reflect"

	"github.com/plus3/slotmap/slot"
)

// Destroyer is implemented by targets with their own teardown. A Strong
// handle must be disposed before or when its target is destroyed.
type Destroyer interface {
	Destroyed() bool
}

// Strong is a handle that holds its target directly.
//
// Strong is move-only by contract. Copying the value copies the handle but
// not ownership: disposing any copy invalidates all of them, and every later
// Get or Dispose through a copy fails.
type Strong[T any] struct {
	h slot.Handle
}

var (
	// leakChecks enables the destroyed-before-dispose sweep.
	leakChecks = slot.DebugChecks

	onLeak = func(h slot.Handle, typ reflect.Type) {
		panic(fmt.Sprintf("ref: %s target %s destroyed before the handle was disposed", typ, h))
	}
)

func strongRegistry[T any]() *registry[*T] {
	return lookup[*T](kindStrong, reflect.TypeFor[T]())
}

func leaked[T any](h slot.Handle, p **T) bool {
	d, ok := any(*p).(Destroyer)
	if !ok || !d.Destroyed() {
		return false
	}
	typ := reflect.TypeFor[T]()
	logger.Error().Str("type", typ.String()).Stringer("handle", h).Msg("strong handle outlived its target")
	onLeak(h, typ)
	return true
}

func sweepLeaks[T any](r *registry[*T]) {
	if leakChecks {
		r.sweep(leaked[T])
	}
}

// NewStrong allocates a strong handle holding target.
func NewStrong[T any](target *T) (Strong[T], error) {
	if target == nil {
		return Strong[T]{}, ErrNilTarget
	}
	r := strongRegistry[T]()
	sweepLeaks(r)

	h, err := r.store.AllocValue(target)
	if err != nil {
		return Strong[T]{}, fmt.Errorf("ref: new strong: %w", err)
	}
	return Strong[T]{h: h}, nil
}

// Get returns the target, or a slot handle error once any copy of s has
// been disposed.
func (s Strong[T]) Get() (*T, error) {
	r := strongRegistry[T]()
	defer sweepLeaks(r)

	target, err := r.store.Value(s.h)
	if err != nil {
		return nil, fmt.Errorf("ref: strong target: %w", err)
	}
	return target, nil
}

// IsAlive reports whether no copy of s has been disposed.
func (s Strong[T]) IsAlive() bool {
	return strongRegistry[T]().store.IsAlive(s.h)
}

// Dispose releases the handle. Only the first Dispose across all copies
// succeeds; later calls return an error matching slot.ErrDoubleFree or
// slot.ErrVersionMismatch.
func (s Strong[T]) Dispose() error {
	r := strongRegistry[T]()
	if err := r.store.Free(s.h); err != nil {
		return fmt.Errorf("ref: dispose strong: %w", err)
	}
	sweepLeaks(r)
	return nil
}

// Handle returns the underlying slot handle.
func (s Strong[T]) Handle() slot.Handle {
	return s.h
}

// StrongStats returns the counters of the registry backing Strong[T].
func StrongStats[T any]() slot.Stats {
	return strongRegistry[T]().store.Stats()
}
