package router

import "errors"

// Error kinds returned by Router and Peer implementations. Handlers convert
// every read/write syscall failure against their source socket into
// ErrHandlerRead; the router never lets that surface past Run.
var (
	// ErrInterrupted signals that the event loop was asked to stop. It
	// propagates out of Run and ends the current tick, but is not fatal
	// to the process.
	ErrInterrupted = errors.New("router: interrupted")

	// ErrHandlerRead means a handler could not complete its read or
	// write against its source socket. The router unregisters the
	// offending peer and continues.
	ErrHandlerRead = errors.New("router: handler read/write failed")

	// ErrResources means allocation or readiness-facility capacity
	// failed. Returned to the caller of Register/Run; the operation is
	// a no-op on failure.
	ErrResources = errors.New("router: resource allocation failed")

	// ErrNoHandler means dispatch observed a descriptor with no peer
	// entry -- a torn invariant. Surfaced out of the tick as a defect.
	ErrNoHandler = errors.New("router: dispatch saw an unregistered descriptor")

	// errUnknownPacket is internal to L3Peer: a non-IPv4 frame was
	// observed and the datagram was silently dropped. It never leaves
	// the handler.
	errUnknownPacket = errors.New("router: non-ipv4 packet dropped")
)
