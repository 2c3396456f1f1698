//go:build linux

package router

// The readiness facility is the kernel object used to learn which
// descriptors are readable -- epoll on Linux. This file isolates every
// direct golang.org/x/sys/unix call so router.go stays readable as the
// engine logic on top of it.

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// readinessFacility wraps an epoll instance. It never subscribes a
// descriptor for write-readiness.
type readinessFacility struct {
	fd int
}

func newReadinessFacility() (*readinessFacility, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: epoll_create1: %v", ErrResources, err)
	}
	return &readinessFacility{fd: fd}, nil
}

func (r *readinessFacility) close() error {
	return unix.Close(r.fd)
}

// subscribe registers socket for read-readiness OR'd with extraFlags.
func (r *readinessFacility) subscribe(socket int, extraFlags uint32) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | extraFlags,
		Fd:     int32(socket),
	}
	if err := unix.EpollCtl(r.fd, unix.EPOLL_CTL_ADD, socket, &ev); err != nil {
		return fmt.Errorf("%w: epoll_ctl(ADD, %d): %v", ErrResources, socket, err)
	}
	return nil
}

// unsubscribe removes socket from the facility. Errors are swallowed by
// the caller (router.Unregister) -- the descriptor may already be
// closed.
func (r *readinessFacility) unsubscribe(socket int) error {
	return unix.EpollCtl(r.fd, unix.EPOLL_CTL_DEL, socket, nil)
}

// wait blocks for at most timeoutMs milliseconds and fills events,
// returning the number of ready descriptors. EINTR is retried
// transparently since it is not a real readiness result.
func (r *readinessFacility) wait(events []unix.EpollEvent, timeoutMs int) (int, error) {
	for {
		n, err := unix.EpollWait(r.fd, events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("%w: epoll_wait: %v", ErrResources, err)
		}
		return n, nil
	}
}
