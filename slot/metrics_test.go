package slot

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsReportStoreActivity(t *testing.T) {
	m := NewMetrics("test")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))

	s := New[int](WithName("items"), WithMetrics(m))
	var handles []Handle
	for i := range 4 {
		h, err := s.AllocValue(i)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	require.NoError(t, s.Free(handles[1]))
	assert.ErrorIs(t, s.Free(handles[1]), ErrDoubleFree)
	_, err := s.Compact()
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg,
		"test_slot_allocs_total",
		"test_slot_frees_total",
		"test_slot_invalid_handle_total",
		"test_slot_compactions_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.allocs.WithLabelValues("items")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frees.WithLabelValues("items")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalid.WithLabelValues("items", "double_free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.moved.WithLabelValues("items")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.live.WithLabelValues("items")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.freeSlots.WithLabelValues("items")))
	assert.Equal(t, 16.0, testutil.ToFloat64(m.capacity.WithLabelValues("items")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *storeMetrics
	assert.NotPanics(t, func() {
		m.alloc()
		m.free()
		m.compacted(3)
		m.invalid(ErrSlotFree)
		m.observe(1, 2, 3)
	})
	assert.Nil(t, (*Metrics)(nil).forStore("x"))
}

func TestLastOccupiedInvariant(t *testing.T) {
	s := New[int]()
	var live []Handle
	for i := range 200 {
		h, err := s.AllocValue(i)
		require.NoError(t, err)
		live = append(live, h)
		if i%3 == 0 {
			victim := live[len(live)/2]
			require.NoError(t, s.Free(victim))
			live = append(live[:len(live)/2], live[len(live)/2+1:]...)
		}
		assertTrackerConsistent(t, s)
	}
	_, err := s.Compact()
	require.NoError(t, err)
	assertTrackerConsistent(t, s)
}

func assertTrackerConsistent(t *testing.T, s *Store[int]) {
	t.Helper()
	if s.lastOccupied >= 0 {
		require.True(t, s.tracker[s.lastOccupied].Allocated())
	}
	for i := s.lastOccupied + 1; i < s.length; i++ {
		require.False(t, s.tracker[i].Allocated(), "index %d above last occupied %d", i, s.lastOccupied)
	}
	for i := 0; i < s.length; i++ {
		h := s.tracker[i]
		require.Equal(t, !h.Allocated(), s.free.Contains(uint32(i)))
		if h.Allocated() {
			require.Equal(t, uint32(i), h.Index())
		}
	}
}
