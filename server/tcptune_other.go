//go:build !linux

package server

import "net"

// enableQuickAck is a no-op outside Linux: TCP_QUICKACK has no equivalent on
// other platforms' sockets.
func enableQuickAck(*net.TCPConn) error { return nil }
