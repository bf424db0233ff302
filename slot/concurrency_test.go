package slot_test

import (
	"testing"

	"github.com/plus3/slotmap/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentAllocFree(t *testing.T) {
	s := slot.New[int]()
	const workers = 8
	const perWorker = 500

	var g errgroup.Group
	kept := make([][]slot.Handle, workers)
	for w := range workers {
		g.Go(func() error {
			for i := range perWorker {
				h, err := s.AllocValue(w*perWorker + i)
				if err != nil {
					return err
				}
				if i%2 == 0 {
					if err := s.Free(h); err != nil {
						return err
					}
					continue
				}
				kept[w] = append(kept[w], h)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, workers*perWorker/2, s.Count())
	for w, handles := range kept {
		for _, h := range handles {
			v, err := s.Value(h)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, w*perWorker)
			assert.Less(t, v, (w+1)*perWorker)
		}
	}
}

func TestConcurrentDoubleFreeReportsOnce(t *testing.T) {
	s := slot.New[int]()
	h, err := s.AllocSlot()
	require.NoError(t, err)

	var g errgroup.Group
	results := make([]error, 16)
	for i := range results {
		g.Go(func() error {
			results[i] = s.Free(h)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, slot.ErrDoubleFree)
	}
	assert.Equal(t, 1, succeeded)
}
