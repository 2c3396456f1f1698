package router

import (
	"encoding/binary"

	"golang.org/x/net/ipv4"
)

// ipv4HeaderView is a zero-copy, read-only projection over the first 20
// octets of a datagram buffer. It never retains the buffer beyond the
// call that created it; multi-byte fields are interpreted in network
// byte order by the accessors, not stored pre-swapped, and reads tolerate
// a buffer whose start alignment is not guaranteed.
type ipv4HeaderView struct {
	b []byte
}

// asIPv4Header wraps buf as an IPv4 header view. buf must have at least
// ipv4.HeaderLen bytes; callers check this before constructing the view.
func asIPv4Header(buf []byte) ipv4HeaderView {
	return ipv4HeaderView{b: buf}
}

// version returns the 4-bit version nibble. Only version 4 is consumed
// further by L3Peer; any other value means the frame is dropped.
func (h ipv4HeaderView) version() int {
	return int(h.b[0] >> 4)
}

// ihl returns the header length in 32-bit words (the low nibble of byte
// 0). The core never needs it beyond version 4's fixed 20-byte minimum,
// but it's exposed for completeness of the structural view.
func (h ipv4HeaderView) ihl() int {
	return int(h.b[0] & 0x0f)
}

// totalLength returns the 16-bit total length field, network byte order.
// This is the sole framing contract for datagrams relayed over a TCP
// peer: the forwarded slice is buffer[0:totalLength].
func (h ipv4HeaderView) totalLength() int {
	return int(binary.BigEndian.Uint16(h.b[2:4]))
}

// destination returns the raw 4-octet destination address.
func (h ipv4HeaderView) destination() [4]byte {
	var d [4]byte
	copy(d[:], h.b[16:20])
	return d
}

// isIPv4 reports whether b is long enough and version-tagged to be
// interpreted as an IPv4 header at all.
func isIPv4(b []byte) bool {
	return len(b) >= ipv4.HeaderLen && asIPv4Header(b).version() == ipv4.Version
}
