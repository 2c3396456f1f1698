// Package routepolicy supplies the forwarding-map population policy: the
// router's forwarding table never populates itself at runtime, so
// something external has to decide which destination address maps to
// which socket.
package routepolicy

import (
	"net"

	"go.uber.org/zap"

	"github.com/l3router/tunrouter/internal/router"
)

// Entry is one statically configured remote peer: the IPv4 address it
// answers for, and the socket handle of the peer that should receive
// datagrams addressed to it.
type Entry struct {
	Address net.IP
	Socket  int
}

// StaticTable seeds a router.ForwardingMap from a fixed entry list and
// keeps it clean as peers come and go. It only adds and removes entries;
// it does not change how L3Peer.Handle reacts to a failed handler.
type StaticTable struct {
	fwd *router.ForwardingMap
	log *zap.Logger
}

// NewStaticTable binds the policy to r's forwarding map and subscribes
// to r's unregister notifications so a dead peer's socket is scrubbed
// from the map instead of lingering until some other entry overwrites
// it.
func NewStaticTable(r *router.Router, log *zap.Logger) *StaticTable {
	t := &StaticTable{fwd: r.ForwardingMap(), log: log}
	r.OnUnregister(t.handleUnregister)
	return t
}

// Seed installs every entry into the forwarding map.
func (t *StaticTable) Seed(entries []Entry) {
	for _, e := range entries {
		addr4 := e.Address.To4()
		if addr4 == nil {
			if t.log != nil {
				t.log.Warn("routepolicy: skipping non-IPv4 entry", zap.String("address", e.Address.String()))
			}
			continue
		}
		var raw [4]byte
		copy(raw[:], addr4)
		t.fwd.Put(router.NewIPv4Key(raw, 0), e.Socket)
	}
}

// Add installs a single entry at runtime, e.g. after a TCP peer accepts.
func (t *StaticTable) Add(addr net.IP, socket int) {
	addr4 := addr.To4()
	if addr4 == nil {
		return
	}
	var raw [4]byte
	copy(raw[:], addr4)
	t.fwd.Put(router.NewIPv4Key(raw, 0), socket)
}

func (t *StaticTable) handleUnregister(p router.Peer) {
	t.fwd.RemoveBySocket(p.Socket())
}
