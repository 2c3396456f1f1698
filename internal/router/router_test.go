package router

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// recordingPeer is a minimal test Peer: its Handle captures the bytes it
// read, or returns a caller-supplied error to exercise self-eviction.
type recordingPeer struct {
	socket  int
	addr    Addr
	buf     []byte
	lastN   int
	calls   int
	failure error
}

func newRecordingPeer(socket int) *recordingPeer {
	return &recordingPeer{socket: socket, buf: make([]byte, 4096)}
}

func (p *recordingPeer) Socket() int  { return p.socket }
func (p *recordingPeer) Address() Addr { return p.addr }
func (p *recordingPeer) String() string {
	return fmt.Sprintf("recordingPeer(fd=%d)", p.socket)
}

func (p *recordingPeer) Handle(_ *ForwardingMap) error {
	p.calls++
	if p.failure != nil {
		return p.failure
	}
	n, err := unix.Read(p.socket, p.buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandlerRead, err)
	}
	p.lastN = n
	return nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New(1, 100*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestPipeRoundTrip(t *testing.T) {
	rEnd, wEnd, err := os.Pipe()
	require.NoError(t, err)
	defer rEnd.Close()
	defer wEnd.Close()

	router := newTestRouter(t)
	peer := newRecordingPeer(int(rEnd.Fd()))
	require.NoError(t, router.Register(peer, 0))

	msg := []byte("hello world!")
	_, err = wEnd.Write(msg)
	require.NoError(t, err)

	require.NoError(t, router.Run())

	require.Equal(t, 1, peer.calls)
	require.Equal(t, len(msg), peer.lastN)
	require.Equal(t, msg, peer.buf[:peer.lastN])
}

func TestSelfEvictionOnFailingHandler(t *testing.T) {
	rEnd, wEnd, err := os.Pipe()
	require.NoError(t, err)
	defer rEnd.Close()
	defer wEnd.Close()

	router := newTestRouter(t)
	peer := newRecordingPeer(int(rEnd.Fd()))
	peer.failure = ErrHandlerRead
	require.NoError(t, router.Register(peer, 0))

	_, err = wEnd.Write([]byte("hello world!"))
	require.NoError(t, err)
	require.NoError(t, router.Run())
	require.Equal(t, 1, peer.calls)

	router.mu.Lock()
	_, stillRegistered := router.peers[peer.Socket()]
	router.mu.Unlock()
	require.False(t, stillRegistered)

	_, err = wEnd.Write([]byte("hello world!"))
	require.NoError(t, err)
	require.NoError(t, router.Run())
	require.Equal(t, 1, peer.calls, "unregistered peer must not be dispatched again")
}

func TestRegisterRejectsWriteReadiness(t *testing.T) {
	rEnd, wEnd, err := os.Pipe()
	require.NoError(t, err)
	defer rEnd.Close()
	defer wEnd.Close()

	router := newTestRouter(t)
	peer := newRecordingPeer(int(rEnd.Fd()))

	require.Panics(t, func() {
		_ = router.Register(peer, unix.EPOLLOUT)
	})
}

func TestNewRejectsInvalidMaxConcurrent(t *testing.T) {
	_, err := New(0, 100*time.Millisecond, nil)
	require.Error(t, err)
}

func TestUnregisterInvokesHooks(t *testing.T) {
	rEnd, wEnd, err := os.Pipe()
	require.NoError(t, err)
	defer rEnd.Close()
	defer wEnd.Close()

	router := newTestRouter(t)
	peer := newRecordingPeer(int(rEnd.Fd()))
	require.NoError(t, router.Register(peer, 0))

	var hookCalled bool
	router.OnUnregister(func(p Peer) {
		hookCalled = true
		require.Equal(t, peer.Socket(), p.Socket())
	})

	router.Unregister(peer)
	require.True(t, hookCalled)
}
