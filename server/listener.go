package server

import (
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	diskdb "github.com/transybao1393/diskdb-go"
)

// listenBacklog is the TCP listen() backlog spec.md §4.7 requires (>= 1024).
// Go's net.Listen always asks the kernel for its own default backlog
// (net.core.somaxconn on Linux) with no way to override it, so reaching the
// explicit backlog means building the socket by hand with golang.org/x/sys/unix
// and handing the resulting fd to net.FileListener.
const listenBacklog = 1024

// listenTCP binds addr ("host:port") with SO_REUSEADDR and (on platforms
// that support it) SO_REUSEPORT, and a listen backlog of listenBacklog.
func listenTCP(addr string) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, diskdb.WithStack(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, diskdb.WithStack(err)
	}

	ip := net.ParseIP(host)
	if host == "" {
		ip = net.IPv4zero
	} else if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			return nil, diskdb.WithStack(err)
		}
		ip = resolved.IP
	}

	var fd int
	var sa unix.Sockaddr
	if v4 := ip.To4(); v4 != nil {
		fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
		s4 := &unix.SockaddrInet4{Port: port}
		copy(s4.Addr[:], v4)
		sa = s4
	} else {
		fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, unix.IPPROTO_TCP)
		s6 := &unix.SockaddrInet6{Port: port}
		copy(s6.Addr[:], ip.To16())
		sa = s6
	}
	if err != nil {
		return nil, diskdb.WithStack(err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, diskdb.WithStack(err)
	}
	// SO_REUSEPORT lets multiple processes bind the same port for load
	// balancing; not fatal if the kernel lacks it.
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, diskdb.WithStack(err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, diskdb.WithStack(err)
	}

	f := os.NewFile(uintptr(fd), "diskdb-listener")
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, diskdb.WithStack(err)
	}
	return l, nil
}
