package ecs

import "github.com/plus3/slotmap/slot"

// EntityId identifies an entity by its archetype and the slot handle of its
// row in that archetype. The zero EntityId names no entity.
type EntityId struct {
	archetype uint32
	handle    slot.Handle
}

// NewEntityId creates an EntityId from an archetype ID and a row handle
func NewEntityId(archetypeId uint32, handle slot.Handle) EntityId {
	return EntityId{archetype: archetypeId, handle: handle}
}

// ArchetypeId returns the archetype the entity lived in when the id was issued
func (e EntityId) ArchetypeId() uint32 {
	return e.archetype
}

// Handle returns the row handle
func (e EntityId) Handle() slot.Handle {
	return e.handle
}

// Index returns the row index inside the archetype
func (e EntityId) Index() uint32 {
	return e.handle.Index()
}

func (e EntityId) IsZero() bool {
	return e == EntityId{}
}

// EntityRef is a stable reference to an entity. It follows the entity across
// archetype changes and compaction; Id is zero once the entity is deleted.
type EntityRef struct {
	Id        EntityId
	Archetype *Archetype
}
