// Package tcplisten runs the TCP accept loop: for each accepted
// connection it constructs an L3Peer bound to the accepted socket and
// registers it with the router.
package tcplisten

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/zap"

	"github.com/l3router/tunrouter/internal/router"
	"github.com/l3router/tunrouter/internal/routepolicy"
)

// Listener accepts TCP connections and registers each as an L3Peer.
type Listener struct {
	ln     *net.TCPListener
	router *router.Router
	table  *routepolicy.StaticTable
	log    *zap.Logger
}

// Listen binds addr (host:port) and returns a Listener ready for Serve.
func Listen(addr string, r *router.Router, table *routepolicy.StaticTable, log *zap.Logger) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcplisten: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("tcplisten: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, router: r, table: table, log: log}, nil
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed. Each accepted connection becomes an L3Peer registered with the
// router; the peer's socket is also seeded into the forwarding table so
// traffic destined for the remote end of this connection resolves
// immediately.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("tcplisten: accept: %w", err)
			}
		}
		l.handleAccept(conn)
	}
}

func (l *Listener) handleAccept(conn *net.TCPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		l.log.Error("tcplisten: SyscallConn failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	var fd int
	var ctrlErr error
	err = raw.Control(func(sysfd uintptr) {
		dupFd, dErr := syscall.Dup(int(sysfd))
		if dErr != nil {
			ctrlErr = dErr
			return
		}
		fd = dupFd
	})
	if err != nil || ctrlErr != nil {
		l.log.Error("tcplisten: failed to obtain a raw fd", zap.Error(err), zap.NamedError("ctrl_err", ctrlErr))
		_ = conn.Close()
		return
	}
	// The net.TCPConn keeps its own fd; the peer operates on the dup so
	// the core never shares a *os.File's lifecycle with net package
	// internals. The connection wrapper itself is no longer needed once
	// we hold the dup.
	remoteIP := conn.RemoteAddr().(*net.TCPAddr).IP
	_ = conn.Close()

	var addr router.Addr
	if ip4 := remoteIP.To4(); ip4 != nil {
		copy(addr.IP[:], ip4)
	}

	peer := router.NewL3Peer(fd, addr, l.log)
	if err := l.router.Register(peer, 0); err != nil {
		l.log.Error("tcplisten: register failed", zap.Error(err))
		syscall.Close(fd)
		return
	}
	if l.table != nil && len(remoteIP) > 0 {
		l.table.Add(remoteIP, fd)
	}
	l.log.Info("tcplisten: accepted peer", zap.String("peer", peer.String()))
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
