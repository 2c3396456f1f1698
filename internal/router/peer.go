package router

import "fmt"

// Addr is an IPv4 socket address: zero when irrelevant (e.g. a TUN peer
// has no meaningful local port). It is kept separate from Key so a peer
// can expose its bind address without committing to the forwarding map's
// wider encoding.
type Addr struct {
	IP   [4]byte
	Port uint16
}

func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// IsZero reports whether a carries no meaningful address.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// Peer is the capability the router operates on: a socket, a local
// address, and a handler invoked when the socket becomes readable.
// Variants (L3Peer today, a future ControlPeer) differ only in Handle;
// the router treats every Peer uniformly. A peer is owned by whatever
// created it -- the router holds only a non-owning reference via the
// peer table -- and must keep any auxiliary state its handler needs (a
// read buffer, say) alive for the duration of its registration.
type Peer interface {
	// Socket returns the peer's file descriptor. It must remain valid
	// for as long as the peer is registered.
	Socket() int

	// Address returns the peer's local IPv4 socket address, or the zero
	// Addr if none applies.
	Address() Addr

	// Handle is invoked by the router with a non-owning reference to the
	// shared forwarding map when the peer's socket is readable. It reads
	// at most one datagram. Returning ErrHandlerRead causes the router
	// to unregister this peer; ErrInterrupted propagates out of Run;
	// any other error is a defect.
	Handle(fwd *ForwardingMap) error

	// String identifies the peer for log lines.
	String() string
}
