package ecs_test

import (
	"reflect"
	"testing"

	"github.com/plus3/slotmap/ecs"
	"github.com/plus3/slotmap/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityIdEncoding(t *testing.T) {
	h := slot.NewHandle(67890, 3, true)
	entityId := ecs.NewEntityId(12345, h)

	assert.Equal(t, uint32(12345), entityId.ArchetypeId())
	assert.Equal(t, h, entityId.Handle())
	assert.Equal(t, uint32(67890), entityId.Index())
	assert.False(t, entityId.IsZero())
	assert.True(t, ecs.EntityId{}.IsZero())
}

func TestSpawnEntity(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Position{X: 1.0, Y: 2.0}, &Velocity{DX: 0.5, DY: 0.5}, Score(32))
	assert.False(t, id.IsZero())
	assert.True(t, id.Handle().Allocated())
	assert.True(t, storage.Alive(id))
	assert.Equal(t, 1, storage.EntityCount())
}

func TestSpawnWithoutComponentsPanics(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	assert.Panics(t, func() { storage.Spawn() })
}

func TestSpawnUnregisteredComponentPanics(t *testing.T) {
	type unregistered struct{ A int }
	storage := ecs.NewStorage(newTestRegistry())
	assert.Panics(t, func() { storage.Spawn(unregistered{A: 1}) })
}

func TestGetComponent(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Position{X: 3.0, Y: 4.0}, Tag("Test Entity"))

	pos := ecs.ReadComponent[Position](storage, id)
	require.NotNil(t, pos)
	assert.Equal(t, float32(3.0), pos.X)
	assert.Equal(t, float32(4.0), pos.Y)

	tag := ecs.ReadComponent[Tag](storage, id)
	require.NotNil(t, tag)
	assert.Equal(t, Tag("Test Entity"), *tag)

	assert.Nil(t, storage.GetComponent(id, reflect.TypeOf(Velocity{})))
	assert.Nil(t, ecs.ReadComponent[Velocity](storage, id))
}

func TestGetComponentIsMutable(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	id := storage.Spawn(Health{Current: 10, Max: 10})

	ecs.ReadComponent[Health](storage, id).Current = 3

	assert.Equal(t, 3, ecs.ReadComponent[Health](storage, id).Current)
}

func TestDeleteEntity(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Position{X: 1.0, Y: 1.0})
	require.NoError(t, storage.Delete(id))

	assert.False(t, storage.Alive(id))
	assert.Nil(t, storage.GetComponent(id, reflect.TypeOf(Position{})))
	assert.Equal(t, 0, storage.EntityCount())

	err := storage.Delete(id)
	assert.ErrorIs(t, err, slot.ErrInvalidHandle)
	assert.ErrorIs(t, err, slot.ErrDoubleFree)
}

func TestDeleteUnknownArchetype(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	err := storage.Delete(ecs.NewEntityId(42, slot.NewHandle(0, 1, true)))
	assert.ErrorIs(t, err, ecs.ErrUnknownArchetype)
}

func TestStaleIdAfterReuse(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	first := storage.Spawn(Position{X: 1})
	require.NoError(t, storage.Delete(first))
	second := storage.Spawn(Position{X: 2})

	assert.Equal(t, first.Index(), second.Index())
	assert.NotEqual(t, first, second)

	assert.False(t, storage.Alive(first))
	assert.Nil(t, ecs.ReadComponent[Position](storage, first))
	assert.Equal(t, float32(2), ecs.ReadComponent[Position](storage, second).X)

	err := storage.Delete(first)
	assert.ErrorIs(t, err, slot.ErrVersionMismatch)
	assert.True(t, storage.Alive(second))

	_, err = storage.AddComponent(first, Velocity{})
	assert.ErrorIs(t, err, slot.ErrInvalidHandle)
}

func TestDeletedSlotIsCleared(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	first := storage.Spawn(Inventory{Items: []string{"sword"}})
	require.NoError(t, storage.Delete(first))
	second := storage.Spawn(Inventory{})

	assert.Nil(t, ecs.ReadComponent[Inventory](storage, second).Items)
}

func TestSameArchetypeRegardlessOfOrder(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	a := storage.Spawn(Position{}, Velocity{})
	b := storage.Spawn(&Velocity{}, &Position{})

	assert.Equal(t, a.ArchetypeId(), b.ArchetypeId())
	archetype := storage.GetArchetype(Velocity{}, Position{})
	require.NotNil(t, archetype)
	assert.Equal(t, 2, archetype.Len())
	assert.Same(t, archetype, storage.GetArchetypeByTypes([]reflect.Type{
		reflect.TypeOf(Velocity{}), reflect.TypeOf(Position{}),
	}))
}

func TestAddComponent(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(Position{X: 1, Y: 2})
	moved, err := storage.AddComponent(id, Velocity{DX: 3})
	require.NoError(t, err)

	assert.NotEqual(t, id.ArchetypeId(), moved.ArchetypeId())
	assert.False(t, storage.Alive(id))
	assert.True(t, storage.HasComponent(moved, reflect.TypeOf(Velocity{})))
	assert.Equal(t, float32(1), ecs.ReadComponent[Position](storage, moved).X)
	assert.Equal(t, float32(3), ecs.ReadComponent[Velocity](storage, moved).DX)
	assert.Equal(t, 1, storage.EntityCount())
}

func TestAddExistingComponentOverwrites(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(Position{X: 1})
	same, err := storage.AddComponent(id, &Position{X: 9})
	require.NoError(t, err)

	assert.Equal(t, id, same)
	assert.Equal(t, float32(9), ecs.ReadComponent[Position](storage, id).X)
}

func TestRemoveComponent(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(Position{X: 1}, Velocity{DX: 2})
	moved, err := storage.RemoveComponent(id, reflect.TypeOf(Velocity{}))
	require.NoError(t, err)

	assert.False(t, storage.HasComponent(moved, reflect.TypeOf(Velocity{})))
	assert.Equal(t, float32(1), ecs.ReadComponent[Position](storage, moved).X)

	same, err := storage.RemoveComponent(moved, reflect.TypeOf(Health{}))
	require.NoError(t, err)
	assert.Equal(t, moved, same)

	gone, err := storage.RemoveComponent(moved, reflect.TypeOf(Position{}))
	require.NoError(t, err)
	assert.True(t, gone.IsZero())
	assert.Equal(t, 0, storage.EntityCount())
}

func TestArchetypeIter(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	var ids []ecs.EntityId
	for i := range 5 {
		ids = append(ids, storage.Spawn(Score(i)))
	}
	require.NoError(t, storage.Delete(ids[2]))

	archetype := storage.GetArchetype(Score(0))
	require.NotNil(t, archetype)

	var seen []ecs.EntityId
	for id := range archetype.Iter() {
		seen = append(seen, id)
	}
	assert.Equal(t, []ecs.EntityId{ids[0], ids[1], ids[3], ids[4]}, seen)
}

func TestCompactMovesColumns(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	var ids []ecs.EntityId
	for i := range 5 {
		ids = append(ids, storage.Spawn(Score(i), Tag("e")))
	}
	require.NoError(t, storage.Delete(ids[1]))
	require.NoError(t, storage.Delete(ids[3]))

	moves := storage.Compact()
	archetypeMoves := moves[ids[0].ArchetypeId()]
	require.Len(t, archetypeMoves, 1)
	assert.Equal(t, ids[4].Handle(), archetypeMoves[0].Old)
	assert.Equal(t, uint32(1), archetypeMoves[0].New.Index())

	moved := ecs.NewEntityId(ids[4].ArchetypeId(), archetypeMoves[0].New)
	assert.False(t, storage.Alive(ids[4]))
	assert.Equal(t, Score(4), *ecs.ReadComponent[Score](storage, moved))
	assert.Equal(t, Score(0), *ecs.ReadComponent[Score](storage, ids[0]))
	assert.Equal(t, Score(2), *ecs.ReadComponent[Score](storage, ids[2]))

	stats := storage.GetArchetype(Score(0), Tag("")).Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 3, stats.Len)
	assert.Equal(t, 0, stats.Free)
}

func TestCompactWithoutGaps(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	storage.Spawn(Position{})
	storage.Spawn(Position{})

	assert.Empty(t, storage.Compact())
}

func TestLargeEntityCount(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	const n = 5000
	ids := make([]ecs.EntityId, 0, n)
	for i := range n {
		ids = append(ids, storage.Spawn(Score(i), Position{X: float32(i)}))
	}
	for i := 0; i < n; i += 2 {
		require.NoError(t, storage.Delete(ids[i]))
	}
	assert.Equal(t, n/2, storage.EntityCount())

	for i := 1; i < n; i += 2 {
		require.Equal(t, Score(i), *ecs.ReadComponent[Score](storage, ids[i]))
	}
}

func TestPointerComponentsRejected(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	pos := &Position{}
	assert.Panics(t, func() { storage.Spawn(&pos) })
	assert.Panics(t, func() { storage.Spawn(map[string]int{}) })
}

func TestArchetypesVisitsEach(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	storage.Spawn(Position{})
	storage.Spawn(Velocity{})
	storage.Spawn(Position{}, Velocity{})

	count := 0
	storage.Archetypes(func(a *ecs.Archetype) bool {
		count++
		assert.Equal(t, 1, a.Len())
		return true
	})
	assert.Equal(t, 3, count)
}
