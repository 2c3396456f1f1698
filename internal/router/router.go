// Package router implements the event-driven forwarding engine: a
// readiness-multiplexing Router, a polymorphic Peer abstraction, and an
// IPv4-aware L3Peer, all sharing a single ForwardingMap.
package router

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/l3router/tunrouter/internal/rmetrics"
)

// Router owns the readiness facility, the peer table, and the shared
// forwarding map, and drives the event loop.
type Router struct {
	facility      *readinessFacility
	maxConcurrent int
	waitTimeoutMs int
	events        []unix.EpollEvent

	mu    sync.Mutex
	peers map[int]Peer

	fwd *ForwardingMap

	log *zap.Logger

	unregisterMu sync.Mutex
	onUnregister []func(Peer)
}

// New constructs a Router. maxConcurrent must be >= 1; waitTimeout is the
// epoll_wait timeout used by every Run call. Fails with ErrResources if
// the readiness facility cannot be created.
func New(maxConcurrent int, waitTimeout time.Duration, log *zap.Logger) (*Router, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("%w: max_concurrent must be >= 1, got %d", ErrResources, maxConcurrent)
	}
	facility, err := newReadinessFacility()
	if err != nil {
		return nil, err
	}
	return &Router{
		facility:      facility,
		maxConcurrent: maxConcurrent,
		waitTimeoutMs: int(waitTimeout / time.Millisecond),
		events:        make([]unix.EpollEvent, maxConcurrent),
		peers:         make(map[int]Peer),
		fwd:           NewForwardingMap(),
		log:           log,
	}, nil
}

// ForwardingMap returns the router's shared forwarding table, for
// external policy (internal/routepolicy) to populate.
func (r *Router) ForwardingMap() *ForwardingMap { return r.fwd }

// OnUnregister registers fn to be called, outside any router lock,
// whenever a peer is unregistered -- either via self-eviction on a
// failing handler or an explicit Unregister call. Used by
// internal/routepolicy to scrub stale forwarding entries.
func (r *Router) OnUnregister(fn func(Peer)) {
	r.unregisterMu.Lock()
	defer r.unregisterMu.Unlock()
	r.onUnregister = append(r.onUnregister, fn)
}

// writeReadinessMask is every epoll flag that requests write-readiness.
// Registering for any of these is a programming error: writes are
// assumed to be short and non-blocking enough to inline, so the engine
// never waits on write-readiness.
const writeReadinessMask = unix.EPOLLOUT

// Register subscribes peer for read-readiness OR'd with flags and adds
// it to the peer table, both under the peer-table lock, insert-then-
// subscribe so a spurious early event can never find a missing peer.
// flags must not request write-readiness -- doing so is a programming
// error and panics.
func (r *Router) Register(peer Peer, flags uint32) error {
	if flags&writeReadinessMask != 0 {
		panic("router: Register called with a write-readiness flag; write-readiness subscription is disallowed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[peer.Socket()] = peer
	if err := r.facility.subscribe(peer.Socket(), flags); err != nil {
		delete(r.peers, peer.Socket())
		return err
	}
	rmetrics.PeersRegisteredTotal.Inc()
	return nil
}

// Unregister removes peer from the readiness facility and the peer
// table, unsubscribe-then-remove so a concurrent dispatch can never
// observe a peer already freed by its owner. Never fails to the caller.
func (r *Router) Unregister(peer Peer) {
	r.mu.Lock()
	_ = r.facility.unsubscribe(peer.Socket())
	delete(r.peers, peer.Socket())
	r.mu.Unlock()

	rmetrics.PeersUnregisteredTotal.Inc()

	r.unregisterMu.Lock()
	hooks := append([]func(Peer){}, r.onUnregister...)
	r.unregisterMu.Unlock()
	for _, fn := range hooks {
		fn(peer)
	}
}

// Run drives one tick: it waits on the readiness facility and dispatches
// every returned event, repeating while the previous wait returned at
// least one event. The first wait always happens; a wait that returns
// zero events ends the tick, leaving re-entry to the caller.
func (r *Router) Run() error {
	first := true
	n := 0
	var err error
	for first || n > 0 {
		first = false
		n, err = r.facility.wait(r.events, r.waitTimeoutMs)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if derr := r.dispatch(int(r.events[i].Fd)); derr != nil {
				if errors.Is(derr, ErrInterrupted) {
					return derr
				}
				if errors.Is(derr, ErrNoHandler) {
					return derr
				}
			}
		}
	}
	return nil
}

// dispatch looks up the peer for fd and invokes its handler: try-lock
// the peer table, look the descriptor up, release the lock before
// calling the handler so handlers are free to touch unrelated routers or
// maps, then act on the result.
func (r *Router) dispatch(fd int) error {
	if !r.mu.TryLock() {
		// A concurrent register/unregister is in progress; the event
		// will be re-reported on the next wait since read-readiness is
		// level-triggered.
		return nil
	}
	peer, ok := r.peers[fd]
	r.mu.Unlock()

	if !ok {
		if r.log != nil {
			r.log.Error("dispatch saw a descriptor with no registered peer", zap.Int("fd", fd))
		}
		return ErrNoHandler
	}

	err := peer.Handle(r.fwd)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrHandlerRead):
		if r.log != nil {
			r.log.Debug("peer handler failed, unregistering", zap.String("peer", peer.String()), zap.Error(err))
		}
		r.Unregister(peer)
		return nil
	case errors.Is(err, ErrInterrupted):
		return err
	default:
		if r.log != nil {
			r.log.Error("peer handler returned an unexpected error", zap.String("peer", peer.String()), zap.Error(err))
		}
		return nil
	}
}

// Close shuts the router down: every still-registered peer's socket is
// closed so its next dispatch (or the in-flight one) observes a read
// failure and self-evicts, then the readiness facility itself is
// closed.
func (r *Router) Close() error {
	r.mu.Lock()
	sockets := make([]int, 0, len(r.peers))
	for fd := range r.peers {
		sockets = append(sockets, fd)
	}
	r.mu.Unlock()

	for _, fd := range sockets {
		_ = unix.Close(fd)
	}
	return r.facility.close()
}
