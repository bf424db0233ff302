package ecs

import "reflect"

// ComponentRegistry manages component type registration for an ECS instance.
// Each Storage instance has its own ComponentRegistry, allowing multiple
// independent ECS systems to coexist without interference.
type ComponentRegistry struct {
	factories map[reflect.Type]func() iComponentColumn
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		factories: make(map[reflect.Type]func() iComponentColumn),
	}
}

// RegisterComponent registers a new component type with the given registry.
// This must be called for each component type before it can be used.
func RegisterComponent[T any](r *ComponentRegistry) {
	r.factories[reflect.TypeFor[T]()] = func() iComponentColumn {
		return &componentColumn[T]{}
	}
}

func (r *ComponentRegistry) getFactory(t reflect.Type) func() iComponentColumn {
	return r.factories[t]
}

// iComponentColumn is a type-erased column of component values indexed by
// row index. Liveness is tracked by the archetype's slot store, not here.
type iComponentColumn interface {
	Reserve(n int)
	Set(index int, item any) bool
	Get(index int) any
	Clear(index int)
	Move(from, to int)
}

type componentColumn[T any] struct {
	values []T
}

// Reserve makes room for rows [0, n).
func (c *componentColumn[T]) Reserve(n int) {
	if n > len(c.values) {
		c.values = append(c.values, make([]T, max(n-len(c.values), len(c.values)))...)
	}
}

// Set stores item, given as T or *T, at index.
func (c *componentColumn[T]) Set(index int, item any) bool {
	switch v := item.(type) {
	case *T:
		c.values[index] = *v
	case T:
		c.values[index] = v
	default:
		return false
	}
	return true
}

// Get returns a *T into the column. It is invalidated by the next Reserve.
func (c *componentColumn[T]) Get(index int) any {
	if index < 0 || index >= len(c.values) {
		return nil
	}
	return &c.values[index]
}

func (c *componentColumn[T]) Clear(index int) {
	var zero T
	c.values[index] = zero
}

func (c *componentColumn[T]) Move(from, to int) {
	c.values[to] = c.values[from]
	c.Clear(from)
}
