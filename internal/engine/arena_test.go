package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_InsertGetRemove(t *testing.T) {
	var a arena[string]
	h1 := a.insert("one")
	h2 := a.insert("two")

	v, ok := a.get(h1)
	require.True(t, ok)
	assert.Equal(t, "one", *v)
	assert.Equal(t, 2, a.len())

	require.True(t, a.remove(h1))
	_, ok = a.get(h1)
	assert.False(t, ok, "removed handle must not resolve")
	assert.False(t, a.remove(h1), "double remove")
	assert.Equal(t, 1, a.len())

	v, ok = a.get(h2)
	require.True(t, ok)
	assert.Equal(t, "two", *v)
}

// TestArena_StaleHandleAfterReuse checks that a recycled slot does not
// answer to the handle of its previous occupant.
func TestArena_StaleHandleAfterReuse(t *testing.T) {
	var a arena[int]
	old := a.insert(1)
	a.remove(old)
	fresh := a.insert(2)

	assert.Equal(t, old.index, fresh.index, "slot should be reused")
	assert.NotEqual(t, old, fresh)
	_, ok := a.get(old)
	assert.False(t, ok)
	v, ok := a.get(fresh)
	require.True(t, ok)
	assert.Equal(t, 2, *v)
}

func TestArena_HandlesKeepInsertionOrder(t *testing.T) {
	var a arena[int]
	h1 := a.insert(1)
	h2 := a.insert(2)
	h3 := a.insert(3)
	a.remove(h2)
	h4 := a.insert(4)

	assert.Equal(t, []Handle{h1, h3, h4}, a.handles())
}

func TestArena_ResetInvalidatesHandles(t *testing.T) {
	var a arena[int]
	h := a.insert(1)
	a.reset()
	assert.Equal(t, 0, a.len())
	assert.Empty(t, a.handles())

	h2 := a.insert(2)
	_, ok := a.get(h)
	assert.False(t, ok, "handle from before reset must stay dead")
	_, ok = a.get(h2)
	assert.True(t, ok)
}

func TestHandle_IDRoundTrip(t *testing.T) {
	assert.Equal(t, int64(0), Handle{}.ID())
	assert.True(t, HandleFromID(0).IsZero())
	assert.True(t, HandleFromID(-4).IsZero())

	var a arena[int]
	first := a.insert(0)
	assert.Equal(t, int64(1), first.ID())

	a.remove(first)
	reused := a.insert(0)
	assert.Greater(t, reused.ID(), int64(1<<32))
	assert.Equal(t, reused, HandleFromID(reused.ID()))
}
