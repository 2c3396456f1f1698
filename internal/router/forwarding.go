package router

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/l3router/tunrouter/internal/rmetrics"
)

// KeySize is wide enough to hold either a raw IPv4 or IPv6 socket address
// (family + port + address + padding), so the same map can later accept
// L4 endpoints without changing the key encoding.
const KeySize = 50

// Key is the raw socket-address octets used to index the forwarding map.
// It is derived directly from a packet header, never from a formatted
// string, so lookups stay allocation-free on the hot path.
type Key [KeySize]byte

// NewIPv4Key builds a Key from an IPv4 address and port, laid out the way
// a RawSockaddrInet4 is: family, port (network byte order), address,
// zero padding.
func NewIPv4Key(addr [4]byte, port uint16) Key {
	var k Key
	binary.LittleEndian.PutUint16(k[0:2], unix.AF_INET)
	binary.BigEndian.PutUint16(k[2:4], port)
	copy(k[4:8], addr[:])
	return k
}

// ForwardingMap is the shared destination-address -> socket table
// consulted by every peer's handler. A single mutex guards it; callers on
// the hot path try-acquire rather than block, so a missed acquisition
// drops the packet rather than stalling the dispatcher.
type ForwardingMap struct {
	mu      sync.Mutex
	entries map[Key]int
}

// NewForwardingMap returns an empty map.
func NewForwardingMap() *ForwardingMap {
	return &ForwardingMap{entries: make(map[Key]int)}
}

// Put inserts or replaces the socket for key. A later insert for the same
// key replaces the prior value.
func (f *ForwardingMap) Put(key Key, socket int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = socket
	rmetrics.ForwardingMapSize.Set(float64(len(f.entries)))
}

// Get returns the socket registered for key, if any.
func (f *ForwardingMap) Get(key Key) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.entries[key]
	return s, ok
}

// TryGet attempts to acquire the map's lock without blocking. ok is false
// if the lock was contended; the caller should treat that identically to
// "not found this tick" and retry later rather than wait.
func (f *ForwardingMap) TryGet(key Key) (socket int, found bool, ok bool) {
	if !f.mu.TryLock() {
		return 0, false, false
	}
	defer f.mu.Unlock()
	s, have := f.entries[key]
	return s, have, true
}

// Remove deletes the entry for key, if present.
func (f *ForwardingMap) Remove(key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	rmetrics.ForwardingMapSize.Set(float64(len(f.entries)))
}

// RemoveBySocket scrubs every entry whose value is socket. Used by
// routepolicy when a peer owning that socket is unregistered, so a
// forwarding entry never outlives the socket it points at for long.
func (f *ForwardingMap) RemoveBySocket(socket int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range f.entries {
		if v == socket {
			delete(f.entries, k)
		}
	}
	rmetrics.ForwardingMapSize.Set(float64(len(f.entries)))
}

// Len reports the number of live entries.
func (f *ForwardingMap) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
