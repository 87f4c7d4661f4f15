//go:build !windows

package client

import (
	"net"

	"golang.org/x/sys/unix"
)

// isAlive performs the 1 ms non-blocking peek spec.md §4.8 describes: a
// zero-byte MSG_PEEK read distinguishes a socket the peer has cleanly
// closed (reads 0 bytes, no error) from one that is still open (reads
// EAGAIN, since nothing is actually queued on an idle keep-alive
// connection). Non-TCP conns (e.g. in tests) are assumed alive.
func isAlive(conn net.Conn) bool {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return true
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return false
	}

	alive := true
	buf := make([]byte, 1)
	_ = raw.Read(func(fd uintptr) bool {
		n, _, err := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			alive = true
		} else if err != nil {
			alive = false
		} else if n == 0 {
			alive = false // peer performed an orderly shutdown
		}
		return true
	})
	return alive
}
