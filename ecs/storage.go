package ecs

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"weak"

	"github.com/kamstrup/intmap"
	"github.com/plus3/slotmap/slot"
)

// ErrUnknownArchetype indicates an EntityId whose archetype does not exist.
var ErrUnknownArchetype = errors.New("ecs: unknown archetype")

// Storage is the main ECS storage interface
type Storage struct {
	archetypes *intmap.Map[uint32, *Archetype]
	registry   *ComponentRegistry
	rowOpts    []slot.Option
}

// NewStorage creates a new ECS storage system with the given component
// registry. opts are applied to the row store of every archetype.
func NewStorage(registry *ComponentRegistry, opts ...slot.Option) *Storage {
	return &Storage{
		archetypes: intmap.New[uint32, *Archetype](16),
		registry:   registry,
		rowOpts:    opts,
	}
}

func (s *Storage) CreateEntityRef(id EntityId) *EntityRef {
	archetype, ok := s.archetypes.Get(id.ArchetypeId())
	if !ok || !archetype.Contains(id.Handle()) {
		return nil
	}

	// Check if we already have a ref for this entity
	if weakPtr, ok := archetype.refs.Get(id.Handle()); ok {
		if ref := weakPtr.Value(); ref != nil {
			return ref
		}
		archetype.refs.Del(id.Handle())
	}

	ref := &EntityRef{
		Id:        id,
		Archetype: archetype,
	}
	archetype.refs.Put(id.Handle(), weak.Make(ref))
	return ref
}

func (s *Storage) ResolveEntityRef(ref *EntityRef) (EntityId, bool) {
	if ref == nil || ref.Id.IsZero() || ref.Archetype == nil {
		return EntityId{}, false
	}
	if !ref.Archetype.Contains(ref.Id.Handle()) {
		return EntityId{}, false
	}
	return ref.Id, true
}

func (s *Storage) InvalidateEntityRef(ref *EntityRef) bool {
	if ref == nil || ref.Id.IsZero() {
		return false
	}

	if archetype, ok := s.archetypes.Get(ref.Id.ArchetypeId()); ok {
		archetype.refs.Del(ref.Id.Handle())
	}

	ref.Id = EntityId{}
	ref.Archetype = nil
	return true
}

// GetArchetype returns an archetype storage (if one exists)
func (s *Storage) GetArchetype(components ...any) *Archetype {
	types := extractComponentTypes(components)
	archetype, _ := s.archetypes.Get(hashTypesToUint32(types))
	return archetype
}

// GetArchetypeByTypes returns an archetype storage (if one exists) based on reflect.Type
func (s *Storage) GetArchetypeByTypes(types []reflect.Type) *Archetype {
	sort.Sort(byTypeName(types))
	archetype, _ := s.archetypes.Get(hashTypesToUint32(types))
	return archetype
}

// Archetypes calls fn for every archetype until fn returns false
func (s *Storage) Archetypes(fn func(*Archetype) bool) {
	s.archetypes.ForEach(func(_ uint32, a *Archetype) bool {
		return fn(a)
	})
}

// Spawn creates a new entity with the provided components
func (s *Storage) Spawn(components ...any) EntityId {
	if len(components) == 0 {
		panic("cannot spawn entity without components")
	}

	types := extractComponentTypes(components)
	archetype := s.archetypeFor(types)
	return NewEntityId(archetype.id, archetype.Spawn(components))
}

// Delete removes all data related to the entity ID. Deleting a stale id
// returns the slot store's handle error.
func (s *Storage) Delete(id EntityId) error {
	archetype, ok := s.archetypes.Get(id.ArchetypeId())
	if !ok {
		return fmt.Errorf("ecs: delete %08x: %w", id.ArchetypeId(), ErrUnknownArchetype)
	}
	return archetype.Delete(id.Handle())
}

// AddComponent moves the entity to the archetype that also holds component
// and returns its new id. If the entity already has a component of that
// type it is overwritten in place.
func (s *Storage) AddComponent(id EntityId, component any) (EntityId, error) {
	oldArchetype, err := s.liveArchetype(id)
	if err != nil {
		return EntityId{}, err
	}

	compType := componentType(component)
	if oldArchetype.HasComponent(compType) {
		oldArchetype.column(compType).Set(int(id.Index()), component)
		return id, nil
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)+1)
	newTypes = append(newTypes, oldArchetype.types...)
	newTypes = append(newTypes, compType)
	sort.Sort(byTypeName(newTypes))

	components := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		if typ == compType {
			components = append(components, component)
		} else {
			components = append(components, oldArchetype.GetComponent(id.Handle(), typ))
		}
	}

	return s.migrate(id, oldArchetype, s.archetypeFor(newTypes), components)
}

// RemoveComponent moves the entity to the archetype without compType and
// returns its new id. Removing the last component deletes the entity and
// returns the zero id.
func (s *Storage) RemoveComponent(id EntityId, compType reflect.Type) (EntityId, error) {
	oldArchetype, err := s.liveArchetype(id)
	if err != nil {
		return EntityId{}, err
	}
	if !oldArchetype.HasComponent(compType) {
		return id, nil
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)-1)
	for _, typ := range oldArchetype.types {
		if typ != compType {
			newTypes = append(newTypes, typ)
		}
	}

	if len(newTypes) == 0 {
		// Entity has no components left, delete it
		return EntityId{}, oldArchetype.Delete(id.Handle())
	}

	components := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		components = append(components, oldArchetype.GetComponent(id.Handle(), typ))
	}

	return s.migrate(id, oldArchetype, s.archetypeFor(newTypes), components)
}

// GetComponent returns the component for the given entity ID and component type
func (s *Storage) GetComponent(id EntityId, compType reflect.Type) any {
	archetype, ok := s.archetypes.Get(id.ArchetypeId())
	if !ok {
		return nil
	}
	return archetype.GetComponent(id.Handle(), compType)
}

// HasComponent checks if a live entity has a specific component type
func (s *Storage) HasComponent(id EntityId, compType reflect.Type) bool {
	archetype, ok := s.archetypes.Get(id.ArchetypeId())
	if !ok {
		return false
	}
	return archetype.Contains(id.Handle()) && archetype.HasComponent(compType)
}

// Alive reports whether id names a live entity
func (s *Storage) Alive(id EntityId) bool {
	archetype, ok := s.archetypes.Get(id.ArchetypeId())
	return ok && archetype.Contains(id.Handle())
}

// EntityCount returns the number of live entities across all archetypes
func (s *Storage) EntityCount() int {
	total := 0
	s.archetypes.ForEach(func(_ uint32, a *Archetype) bool {
		total += a.Len()
		return true
	})
	return total
}

// Compact compacts every archetype and returns the moves made, keyed by
// archetype id. EntityRefs are updated; plain EntityIds held by the caller
// must be rewritten from the returned moves.
func (s *Storage) Compact() map[uint32][]slot.Move {
	result := make(map[uint32][]slot.Move)
	s.archetypes.ForEach(func(id uint32, a *Archetype) bool {
		a.pruneRefs()
		if moves := a.Compact(); len(moves) > 0 {
			result[id] = moves
		}
		return true
	})
	return result
}

func (s *Storage) archetypeFor(types []reflect.Type) *Archetype {
	archetypeId := hashTypesToUint32(types)
	archetype, ok := s.archetypes.Get(archetypeId)
	if !ok {
		archetype = NewArchetype(archetypeId, types, s.registry, s.rowOpts...)
		s.archetypes.Put(archetypeId, archetype)
	}
	return archetype
}

func (s *Storage) liveArchetype(id EntityId) (*Archetype, error) {
	archetype, ok := s.archetypes.Get(id.ArchetypeId())
	if !ok {
		return nil, fmt.Errorf("ecs: %08x: %w", id.ArchetypeId(), ErrUnknownArchetype)
	}
	if _, err := archetype.rows.Value(id.Handle()); err != nil {
		return nil, err
	}
	return archetype, nil
}

// migrate spawns components in newArchetype, hands any EntityRef over to
// the new row and frees the old one.
func (s *Storage) migrate(id EntityId, oldArchetype, newArchetype *Archetype, components []any) (EntityId, error) {
	newId := NewEntityId(newArchetype.id, newArchetype.Spawn(components))

	if weakPtr, ok := oldArchetype.refs.Get(id.Handle()); ok {
		oldArchetype.refs.Del(id.Handle())
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = newId
			ref.Archetype = newArchetype
			newArchetype.refs.Put(newId.Handle(), weakPtr)
		}
	}

	if err := oldArchetype.Delete(id.Handle()); err != nil {
		return EntityId{}, err
	}
	return newId, nil
}

func componentType(component any) reflect.Type {
	compType := reflect.TypeOf(component)
	if compType.Kind() == reflect.Ptr {
		compType = compType.Elem()
	}
	return compType
}

// extractComponentTypes extracts and sorts component types from a slice of components
func extractComponentTypes(components []any) []reflect.Type {
	types := make([]reflect.Type, 0, len(components))
	for _, comp := range components {
		compType := componentType(comp)

		// Components can be structs or primitives (int, string, etc.)
		// But not pointers, maps, channels, or functions (those aren't value types)
		if compType.Kind() == reflect.Ptr || compType.Kind() == reflect.Map ||
			compType.Kind() == reflect.Chan || compType.Kind() == reflect.Func {
			panic("components cannot be pointers, maps, channels, or functions")
		}

		types = append(types, compType)
	}
	sort.Sort(byTypeName(types))
	return types
}

// hashTypesToUint32 generates an FNV-1a hash over the package path and name
// of each type in a sorted slice
func hashTypesToUint32(types []reflect.Type) uint32 {
	var h uint32 = 2166136261     // FNV-1a 32-bit offset basis
	const prime uint32 = 16777619 // FNV-1a 32-bit prime

	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			h ^= uint32(s[i])
			h *= prime
		}
	}
	for _, t := range types {
		mix(t.PkgPath())
		mix(t.String())
		h ^= 0xFF
		h *= prime
	}

	return h
}

type ComponentReader interface {
	GetComponent(EntityId, reflect.Type) any
}

// ReadComponent returns the entity's component of type T, or nil
func ReadComponent[T any](reader ComponentReader, entityId EntityId) *T {
	comp, _ := reader.GetComponent(entityId, reflect.TypeFor[T]()).(*T)
	return comp
}
