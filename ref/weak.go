package ref

import (
	"errors"
	"fmt"
	"reflect"
	"weak"

	"github.com/plus3/slotmap/slot"
)

// Weak is a handle to a weakly referenced *T. It does not keep the target
// alive. Weak values are plain data and may be copied freely; many Weak
// handles can point at the same target without per-handle heap objects.
type Weak[T any] struct {
	h slot.Handle
}

func weakRegistry[T any]() *registry[weak.Pointer[T]] {
	return lookup[weak.Pointer[T]](kindWeak, reflect.TypeFor[T]())
}

// sweepCollected runs one sweep step, freeing and burying every handle
// whose target has been collected.
func sweepCollected[T any](r *registry[weak.Pointer[T]]) {
	r.sweep(func(h slot.Handle, p *weak.Pointer[T]) bool {
		if p.Value() != nil {
			return false
		}
		r.bury(h)
		return true
	})
}

// NewWeak allocates a weak handle to target.
func NewWeak[T any](target *T) (Weak[T], error) {
	if target == nil {
		return Weak[T]{}, ErrNilTarget
	}
	r := weakRegistry[T]()
	sweepCollected(r)

	h, err := r.store.AllocValue(weak.Make(target))
	if err != nil {
		return Weak[T]{}, fmt.Errorf("ref: new weak: %w", err)
	}
	r.reused(h)
	return Weak[T]{h: h}, nil
}

// GetTarget returns the target. It fails with ErrTargetGone when the target
// has been collected, whether this call or an earlier sweep noticed it, and
// the slot is released in that case. It fails with a slot handle error when
// the handle has been released, or when its slot has been reused since the
// target was collected.
func (w Weak[T]) GetTarget() (*T, error) {
	r := weakRegistry[T]()
	defer sweepCollected(r)

	p, err := r.store.Value(w.h)
	if err != nil {
		if errors.Is(err, slot.ErrSlotFree) && r.buried(w.h) {
			return nil, ErrTargetGone
		}
		return nil, fmt.Errorf("ref: weak target: %w", err)
	}
	target := p.Value()
	if target == nil {
		r.store.Sweep(int(w.h.Index()), 1, func(h slot.Handle, _ *weak.Pointer[T]) bool {
			if h != w.h {
				return false
			}
			r.bury(h)
			return true
		})
		return nil, ErrTargetGone
	}
	return target, nil
}

// TryGetTarget is GetTarget without the reason.
func (w Weak[T]) TryGetTarget() (*T, bool) {
	target, err := w.GetTarget()
	return target, err == nil
}

// IsAlive reports whether the handle is allocated and its target not collected.
func (w Weak[T]) IsAlive() bool {
	p, err := weakRegistry[T]().store.Value(w.h)
	return err == nil && p.Value() != nil
}

// Release frees the handle's slot. Every copy of w becomes invalid.
func (w Weak[T]) Release() error {
	if err := weakRegistry[T]().store.Free(w.h); err != nil {
		return fmt.Errorf("ref: release weak: %w", err)
	}
	return nil
}

// Handle returns the underlying slot handle.
func (w Weak[T]) Handle() slot.Handle {
	return w.h
}

// WeakStats returns the counters of the registry backing Weak[T].
func WeakStats[T any]() slot.Stats {
	return weakRegistry[T]().store.Stats()
}
