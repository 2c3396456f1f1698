//go:build linux

// Package tundev owns ioctl(TUNSETIFF), O_NONBLOCK, and the
// SIOCSIFADDR/SIOCSIFNETMASK/SIOCSIFFLAGS interface bring-up, handing
// the caller a ready, non-blocking file descriptor and nothing more.
package tundev

import (
	"fmt"
	"net"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	tunDevicePath = "/dev/net/tun"
	ifNameSize    = 16
)

// ifReqFlags and ifReqAddr mirror struct ifreq's layout for the TUNSETIFF/SIOCSIF* ioctls
// used here: a 16-byte interface name followed by a union whose first
// member is what each ioctl cares about (flags as int16, or a
// sockaddr_in for the address ioctls).
type ifReqFlags struct {
	name  [ifNameSize]byte
	flags uint16
	_     [22]byte // pad to sizeof(struct ifreq)
}

type ifReqAddr struct {
	name [ifNameSize]byte
	addr unix.RawSockaddrInet4
	_    [8]byte
}

// Config describes the interface to bring up.
type Config struct {
	Name    string // e.g. "tun0"
	Address net.IP
	Netmask net.IP
}

// Device is a configured, non-blocking TUN file descriptor.
type Device struct {
	Fd   int
	Name string
}

// Open creates (or attaches to) the named TUN interface, sets it
// non-blocking, and assigns the given address/netmask before bringing it
// up. The returned Device.Fd is what internal/router.NewL3Peer consumes;
// nothing about addressing or interface flags is the core's concern
// beyond this point.
func Open(cfg Config) (*Device, error) {
	fd, err := unix.Open(tunDevicePath, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tundev: open %s: %w", tunDevicePath, err)
	}

	var req ifReqFlags
	copy(req.name[:], cfg.Name)
	req.flags = unix.IFF_TUN | unix.IFF_NO_PI

	if err := ioctl(fd, unix.TUNSETIFF, unsafe.Pointer(&req)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tundev: TUNSETIFF: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tundev: set non-blocking: %w", err)
	}

	actualName := nullTerminated(req.name[:])

	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tundev: control socket: %w", err)
	}
	defer unix.Close(sock)

	if err := setIfAddr(sock, actualName, unix.SIOCSIFADDR, cfg.Address); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tundev: SIOCSIFADDR: %w", err)
	}
	if err := setIfAddr(sock, actualName, unix.SIOCSIFNETMASK, cfg.Netmask); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tundev: SIOCSIFNETMASK: %w", err)
	}
	if err := setIfFlagsUp(sock, actualName); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tundev: SIOCSIFFLAGS: %w", err)
	}

	return &Device{Fd: fd, Name: actualName}, nil
}

func setIfAddr(sock int, name string, ioctlNum uintptr, ip net.IP) error {
	var req ifReqAddr
	copy(req.name[:], name)
	req.addr.Family = unix.AF_INET
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("tundev: %s is not an IPv4 address", ip)
	}
	copy(req.addr.Addr[:], ip4)
	return ioctl(sock, ioctlNum, unsafe.Pointer(&req))
}

func setIfFlagsUp(sock int, name string) error {
	var req ifReqFlags
	copy(req.name[:], name)
	req.flags = unix.IFF_UP | unix.IFF_RUNNING
	return ioctl(sock, unix.SIOCSIFFLAGS, unsafe.Pointer(&req))
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func nullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
