package client

import "net"

// Conn is a scoped handle on a pooled socket. Release returns it to its
// addrPool (if still alive) or closes it; Discard always closes it. Exactly
// one of Release/Discard should be called once the caller is done with it.
type Conn struct {
	conn net.Conn
	pool *addrPool

	released bool
}

// Read implements net.Conn's Read by delegating to the underlying socket.
func (c *Conn) Read(b []byte) (int, error) { return c.conn.Read(b) }

// Write implements net.Conn's Write by delegating to the underlying socket.
func (c *Conn) Write(b []byte) (int, error) { return c.conn.Write(b) }

// Release re-queues the connection if it is still alive, otherwise closes
// it; either way the pool's counting permit for this address is freed. Safe
// to call at most once — later calls are no-ops.
func (c *Conn) Release() {
	if c.released {
		return
	}
	c.released = true
	c.pool.release(c.conn)
}

// Discard closes the connection without re-queuing it. Use this when the
// caller already knows the socket is broken (e.g. a write returned an
// error), to skip the redundant liveness peek Release would perform.
func (c *Conn) Discard() {
	if c.released {
		return
	}
	c.released = true
	c.pool.discard(c.conn)
}
