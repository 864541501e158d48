package preview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IssueGetRelease(t *testing.T) {
	r := NewRegistry(0)

	data := []byte{0xff, 0xd8, 0xff}
	handle, err := r.Issue(data)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	data[0] = 0
	got, ok := r.Get(handle)
	require.True(t, ok)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, got, "registry keeps its own copy")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 3, r.Bytes())

	assert.True(t, r.Release(handle))
	assert.False(t, r.Release(handle), "double release is a no-op")
	assert.False(t, r.Release(""))

	_, ok = r.Get(handle)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Bytes())
}

func TestRegistry_Bounded(t *testing.T) {
	r := NewRegistry(2)

	a, err := r.Issue([]byte("a"))
	require.NoError(t, err)
	_, err = r.Issue([]byte("b"))
	require.NoError(t, err)

	_, err = r.Issue([]byte("c"))
	assert.ErrorIs(t, err, ErrRegistryFull)

	r.Release(a)
	_, err = r.Issue([]byte("c"))
	assert.NoError(t, err)
}

func TestRegistry_HandleCollision(t *testing.T) {
	r := NewRegistry(0)
	handles := []string{"same", "same", "other"}
	r.newHandle = func() string {
		h := handles[0]
		handles = handles[1:]
		return h
	}

	first, err := r.Issue([]byte("1"))
	require.NoError(t, err)
	second, err := r.Issue([]byte("2"))
	require.NoError(t, err)

	assert.Equal(t, "same", first)
	assert.Equal(t, "other", second)
}

func TestRegistry_OldestAge(t *testing.T) {
	r := NewRegistry(0)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	assert.Zero(t, r.OldestAge())

	first, err := r.Issue([]byte("a"))
	require.NoError(t, err)
	clock = clock.Add(2 * time.Minute)
	_, err = r.Issue([]byte("b"))
	require.NoError(t, err)
	clock = clock.Add(time.Minute)

	assert.Equal(t, 3*time.Minute, r.OldestAge())

	r.Release(first)
	assert.Equal(t, time.Minute, r.OldestAge())
}
