package slot_test

import (
	"testing"

	"github.com/plus3/slotmap/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateAllocated(t *testing.T) {
	s := slot.New[int]()
	handles := allocN(t, s, 5)
	require.NoError(t, s.Free(handles[2]))

	var got []int
	e := s.Enumerate(false)
	for e.Next() {
		assert.True(t, e.Handle().Allocated())
		assert.Equal(t, int(e.Handle().Index()), e.Index())
		got = append(got, *e.Value())
	}
	assert.Equal(t, []int{0, 1, 3, 4}, got)
	assert.False(t, e.Next())
	assert.Nil(t, e.Value())
}

func TestEnumerateIncludeFree(t *testing.T) {
	s := slot.New[int]()
	handles := allocN(t, s, 4)
	require.NoError(t, s.Free(handles[1]))

	var free, live int
	e := s.Enumerate(true)
	for e.Next() {
		if e.Handle().IsZero() {
			free++
			assert.Equal(t, 1, e.Index())
			assert.Equal(t, 0, *e.Value())
			continue
		}
		live++
	}
	assert.Equal(t, 1, free)
	assert.Equal(t, 3, live)
}

func TestEnumerateMutatesInPlace(t *testing.T) {
	s := slot.New[int]()
	handles := allocN(t, s, 3)

	for _, v := range s.All() {
		*v *= 10
	}
	for i, h := range handles {
		v, err := s.Value(h)
		require.NoError(t, err)
		assert.Equal(t, i*10, v)
	}
}

func TestAllStopsEarly(t *testing.T) {
	s := slot.New[int]()
	allocN(t, s, 10)

	visited := 0
	for range s.All() {
		visited++
		if visited == 3 {
			break
		}
	}
	assert.Equal(t, 3, visited)
}

func TestHandles(t *testing.T) {
	s := slot.New[int]()
	handles := allocN(t, s, 3)

	var got []slot.Handle
	for h := range s.Handles() {
		got = append(got, h)
	}
	assert.Equal(t, handles, got)
}

func TestEnumerateEmptyAndClosed(t *testing.T) {
	s := slot.New[int]()
	e := s.Enumerate(true)
	assert.False(t, e.Next())

	allocN(t, s, 2)
	require.NoError(t, s.Close())
	e = s.Enumerate(true)
	assert.False(t, e.Next())
}
