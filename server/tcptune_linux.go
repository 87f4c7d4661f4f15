//go:build linux

package server

import (
	"net"

	"golang.org/x/sys/unix"
)

// enableQuickAck turns on TCP_QUICKACK, disabling delayed ACKs so the line
// protocol's request/response turnaround isn't held up by the kernel's ACK
// coalescing. Linux-only; a no-op stub backs other platforms.
func enableQuickAck(tc *net.TCPConn) error {
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
