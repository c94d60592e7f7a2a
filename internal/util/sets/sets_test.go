package sets

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := New("a", "b")
	s.Add("c")
	assert.True(t, s.Has("b"))
	s.Delete("b")
	assert.False(t, s.Has("b"))

	c := s.Clone()
	c.Add("z")
	assert.False(t, s.Has("z"))
	assert.Len(t, c, 3)
}

func TestConcurrent_AddIsInsertIfAbsent(t *testing.T) {
	var c Concurrent[int64]
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Add(7) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	assert.True(t, c.Has(7))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Delete(7))
	assert.False(t, c.Delete(7))
	assert.Empty(t, c.Snapshot())
}
