package ecs

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
	"weak"

	"github.com/kamstrup/intmap"
	"github.com/plus3/slotmap/slot"
)

type byTypeName []reflect.Type

func (a byTypeName) Len() int           { return len(a) }
func (a byTypeName) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byTypeName) Less(i, j int) bool { return a[i].String() < a[j].String() }

// Archetype stores every entity with one exact combination of component
// types. Rows are allocated from a slot store so deleted entities leave
// stale handles behind instead of dangling indices.
type Archetype struct {
	id      uint32
	types   []reflect.Type
	rows    *slot.Store[struct{}]
	columns []iComponentColumn
	refs    *intmap.Map[slot.Handle, weak.Pointer[EntityRef]]
}

// NewArchetype creates a new archetype with the given ID and sorted component types
func NewArchetype(id uint32, types []reflect.Type, registry *ComponentRegistry, opts ...slot.Option) *Archetype {
	opts = append(slices.Clip(opts), slot.WithName(fmt.Sprintf("archetype:%08x", id)))
	a := &Archetype{
		id:      id,
		types:   types,
		rows:    slot.New[struct{}](opts...),
		columns: make([]iComponentColumn, len(types)),
		refs:    intmap.New[slot.Handle, weak.Pointer[EntityRef]](256),
	}

	for idx, typ := range types {
		factory := registry.getFactory(typ)
		if factory == nil {
			panic("component type " + typ.String() + " not registered")
		}
		a.columns[idx] = factory()
	}

	return a
}

// Spawn creates a new entity in this archetype with the given components
// and returns its row handle
func (a *Archetype) Spawn(components []any) slot.Handle {
	h, err := a.rows.AllocSlot()
	if err != nil {
		panic("ecs: spawn: " + err.Error())
	}

	index := int(h.Index())
	for _, col := range a.columns {
		col.Reserve(index + 1)
	}
	for _, comp := range components {
		if col := a.column(componentType(comp)); col != nil {
			col.Set(index, comp)
		}
	}
	return h
}

// Contains reports whether h is a live row of this archetype
func (a *Archetype) Contains(h slot.Handle) bool {
	return a.rows.IsAlive(h)
}

// GetComponent returns a pointer to the component of the given type for the
// row h, or nil when the row is dead or the archetype lacks the type
func (a *Archetype) GetComponent(h slot.Handle, compType reflect.Type) any {
	col := a.column(compType)
	if col == nil || !a.rows.IsAlive(h) {
		return nil
	}
	return col.Get(int(h.Index()))
}

// Delete frees the row h. Any EntityRef to it is invalidated.
func (a *Archetype) Delete(h slot.Handle) error {
	if err := a.rows.Free(h); err != nil {
		return err
	}

	if weakPtr, ok := a.refs.Get(h); ok {
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = EntityId{}
			ref.Archetype = nil
		}
		a.refs.Del(h)
	}

	index := int(h.Index())
	for _, col := range a.columns {
		col.Clear(index)
	}
	return nil
}

// HasComponent checks if this archetype has the given component type
func (a *Archetype) HasComponent(compType reflect.Type) bool {
	return slices.Contains(a.types, compType)
}

// ID returns the archetype's unique identifier
func (a *Archetype) ID() uint32 {
	return a.id
}

// Types returns the sorted component types for this archetype
func (a *Archetype) Types() []reflect.Type {
	return a.types
}

// Len returns the number of live entities
func (a *Archetype) Len() int {
	return a.rows.Count()
}

// Stats returns the row store counters
func (a *Archetype) Stats() slot.Stats {
	return a.rows.Stats()
}

// Compact packs live rows to the front of every column. EntityRefs are
// rewritten to the new handles; the returned moves let callers rewrite any
// EntityIds they hold themselves.
func (a *Archetype) Compact() []slot.Move {
	moves, err := a.rows.Compact()
	if err != nil {
		panic("ecs: compact: " + err.Error())
	}

	for _, m := range moves {
		from, to := int(m.Old.Index()), int(m.New.Index())
		for _, col := range a.columns {
			col.Move(from, to)
		}

		weakPtr, ok := a.refs.Get(m.Old)
		if !ok {
			continue
		}
		a.refs.Del(m.Old)
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = NewEntityId(a.id, m.New)
			a.refs.Put(m.New, weakPtr)
		}
	}

	return moves
}

// Iter returns an iterator over all live EntityIds in this archetype
func (a *Archetype) Iter() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		for h := range a.rows.Handles() {
			if !yield(NewEntityId(a.id, h)) {
				return
			}
		}
	}
}

func (a *Archetype) column(compType reflect.Type) iComponentColumn {
	for i, typ := range a.types {
		if typ == compType {
			return a.columns[i]
		}
	}
	return nil
}

// pruneRefs drops entries whose EntityRef has been collected.
func (a *Archetype) pruneRefs() int {
	var dead []slot.Handle
	a.refs.ForEach(func(h slot.Handle, weakPtr weak.Pointer[EntityRef]) bool {
		if weakPtr.Value() == nil {
			dead = append(dead, h)
		}
		return true
	})
	for _, h := range dead {
		a.refs.Del(h)
	}
	return len(dead)
}
