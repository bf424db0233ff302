package ecs

import (
	"errors"
	"reflect"
)

// Commands buffers structural changes so they can be made after iterating
// an archetype. Flush applies them in a fixed order: deletes, removes, adds,
// spawns, then deferred functions.
type Commands struct {
	spawns  []spawnCommand
	deletes []EntityId
	adds    []addComponentCommand
	removes []removeComponentCommand
	defers  []func()
}

// NewCommands creates an empty command buffer.
func NewCommands() *Commands {
	return &Commands{}
}

type spawnCommand struct {
	components []any
}

type addComponentCommand struct {
	entity    EntityId
	component any
}

type removeComponentCommand struct {
	entity   EntityId
	compType reflect.Type
}

// Defer queues a function execution operation.
func (c *Commands) Defer(fn func()) {
	c.defers = append(c.defers, fn)
}

// Spawn queues an entity spawn operation with the given components.
func (c *Commands) Spawn(components ...any) {
	c.spawns = append(c.spawns, spawnCommand{components: components})
}

// Delete queues an entity deletion operation.
func (c *Commands) Delete(entity EntityId) {
	c.deletes = append(c.deletes, entity)
}

// AddComponent queues a component addition operation.
func (c *Commands) AddComponent(entity EntityId, component any) {
	c.adds = append(c.adds, addComponentCommand{entity: entity, component: component})
}

// RemoveComponent queues a component removal operation.
func (c *Commands) RemoveComponent(entity EntityId, compType reflect.Type) {
	c.removes = append(c.removes, removeComponentCommand{entity: entity, compType: compType})
}

// Flush applies all commands to storage and resets the buffer. Commands
// aimed at entities deleted in the same flush are skipped. An entity changed
// by several commands is followed through its new ids. Errors from
// individual commands are joined; the remaining commands still run.
func (c *Commands) Flush(storage *Storage) ([]EntityId, error) {
	var errs []error
	deleted := make(map[EntityId]bool)
	renamed := make(map[EntityId]EntityId)
	current := func(id EntityId) EntityId {
		for {
			next, ok := renamed[id]
			if !ok {
				return id
			}
			id = next
		}
	}

	for _, id := range c.deletes {
		if deleted[id] {
			continue
		}
		deleted[id] = true
		if err := storage.Delete(id); err != nil {
			errs = append(errs, err)
		}
	}

	for _, cmd := range c.removes {
		if deleted[cmd.entity] {
			continue
		}
		id := current(cmd.entity)
		if id.IsZero() {
			continue
		}
		newId, err := storage.RemoveComponent(id, cmd.compType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if newId != id {
			renamed[id] = newId
		}
	}

	for _, cmd := range c.adds {
		if deleted[cmd.entity] {
			continue
		}
		id := current(cmd.entity)
		if id.IsZero() {
			continue
		}
		newId, err := storage.AddComponent(id, cmd.component)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if newId != id {
			renamed[id] = newId
		}
	}

	spawned := make([]EntityId, 0, len(c.spawns))
	for _, cmd := range c.spawns {
		spawned = append(spawned, storage.Spawn(cmd.components...))
	}

	for _, fn := range c.defers {
		fn()
	}

	c.spawns = c.spawns[:0]
	c.deletes = c.deletes[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]
	return spawned, errors.Join(errs...)
}
