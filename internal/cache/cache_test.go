package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	hits, misses, evictions int
}

func (c *countingRecorder) RecordHit()      { c.hits++ }
func (c *countingRecorder) RecordMiss()     { c.misses++ }
func (c *countingRecorder) RecordEviction() { c.evictions++ }

func TestLRUGetMissThenHit(t *testing.T) {
	rec := &countingRecorder{}
	c, err := New[string, int](2, rec)
	require.NoError(t, err)

	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 1, rec.misses)

	c.Add("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 1, rec.hits)
}

func TestLRUEvictsOldestBeyondCapacity(t *testing.T) {
	rec := &countingRecorder{}
	c, err := New[string, int](2, rec)
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3) // evicts "a"

	require.Equal(t, 2, c.Len())
	require.Equal(t, 1, rec.evictions)
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestLRURemove(t *testing.T) {
	c, err := New[string, int](2, nil)
	require.NoError(t, err)
	c.Add("a", 1)
	c.Remove("a")
	_, ok := c.Get("a")
	require.False(t, ok)
}
