package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForwardingMapPutGetRoundTrip(t *testing.T) {
	fwd := NewForwardingMap()
	key := NewIPv4Key([4]byte{172, 168, 2, 32}, 0)

	_, ok := fwd.Get(key)
	require.False(t, ok, "key should be absent before Put")

	fwd.Put(key, 42)
	socket, ok := fwd.Get(key)
	require.True(t, ok)
	require.Equal(t, 42, socket)
}

func TestForwardingMapLaterInsertReplaces(t *testing.T) {
	fwd := NewForwardingMap()
	key := NewIPv4Key([4]byte{10, 0, 0, 1}, 0)

	fwd.Put(key, 1)
	fwd.Put(key, 2)

	socket, ok := fwd.Get(key)
	require.True(t, ok)
	require.Equal(t, 2, socket)
	require.Equal(t, 1, fwd.Len())
}

func TestForwardingMapRemove(t *testing.T) {
	fwd := NewForwardingMap()
	key := NewIPv4Key([4]byte{10, 0, 0, 2}, 0)
	fwd.Put(key, 7)

	fwd.Remove(key)

	_, ok := fwd.Get(key)
	require.False(t, ok)
}

func TestForwardingMapRemoveBySocket(t *testing.T) {
	fwd := NewForwardingMap()
	keyA := NewIPv4Key([4]byte{10, 0, 0, 3}, 0)
	keyB := NewIPv4Key([4]byte{10, 0, 0, 4}, 0)
	fwd.Put(keyA, 9)
	fwd.Put(keyB, 9)
	other := NewIPv4Key([4]byte{10, 0, 0, 5}, 0)
	fwd.Put(other, 10)

	fwd.RemoveBySocket(9)

	_, ok := fwd.Get(keyA)
	require.False(t, ok)
	_, ok = fwd.Get(keyB)
	require.False(t, ok)
	socket, ok := fwd.Get(other)
	require.True(t, ok)
	require.Equal(t, 10, socket)
}

func TestForwardingMapTryGetReportsContention(t *testing.T) {
	fwd := NewForwardingMap()
	fwd.mu.Lock()
	defer fwd.mu.Unlock()

	_, _, ok := fwd.TryGet(NewIPv4Key([4]byte{1, 2, 3, 4}, 0))
	require.False(t, ok, "TryGet must report contention rather than block")
}
