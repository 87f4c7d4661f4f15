package server

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/transybao1393/diskdb-go/bufpool"
	"github.com/transybao1393/diskdb-go/executor"
	"github.com/transybao1393/diskdb-go/protocol"
)

const (
	readTimeout      = 30 * time.Second
	writeTimeout     = 10 * time.Second
	maxPipelineDepth = 100
	readBufferSize   = 64 * 1024
	socketBufferMin  = 256 * 1024
)

// pending is one accumulated pipeline entry: either a parsed command or a
// parse failure, carried through to preserve receive order in the response
// stream (spec.md §4.6: "requests MUST be executed in receive order and
// responses emitted in the same order").
type pending struct {
	cmd *protocol.Command
	err error
}

// connection runs the READING -> PARSING -> QUEUED -> EXECUTING -> WRITING
// state machine for one accepted socket.
type connection struct {
	id     string
	conn   net.Conn
	exec   *executor.Executor
	bufs   *bufpool.Pool
	logger *log.Logger
}

// tuneTCP applies the TCP-level settings spec.md §4.6 step 1 requires. A
// TLS connection is tuned through its underlying socket. Non-TCP
// connections (e.g. an in-test net.Pipe) are left untouched.
func tuneTCP(c net.Conn) {
	if tlsConn, ok := c.(*tls.Conn); ok {
		c = tlsConn.NetConn()
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(true)
	_ = tc.SetReadBuffer(socketBufferMin)
	_ = tc.SetWriteBuffer(socketBufferMin)
	_ = tc.SetKeepAlive(true)
	_ = enableQuickAck(tc)
}

// serve runs the connection's read/parse/execute/write loop until the peer
// closes the connection, a protocol framing error forces a close, or a
// read/write deadline is exceeded.
func (c *connection) serve() {
	defer c.conn.Close()
	tuneTCP(c.conn)

	reader := bufio.NewReaderSize(c.conn, readBufferSize)
	var batch []pending

	flushAndReset := func() bool {
		if len(batch) == 0 {
			return true
		}
		ok := c.flush(batch)
		batch = batch[:0]
		return ok
	}

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		line, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// The line didn't fit in the 64 KiB read buffer: report it as a
			// protocol error and close rather than attempt to resync on an
			// unbounded line (spec.md §4.6's 64 KiB read buffer is the hard
			// cap on an accepted line).
			batch = append(batch, pending{err: protocol.ErrProtocol})
			flushAndReset()
			return
		}
		if len(line) > 0 {
			cmd, perr := protocol.Parse(string(line))
			triggerFlush := false
			if perr != nil {
				batch = append(batch, pending{err: perr})
				triggerFlush = true
			} else if cmd != nil {
				batch = append(batch, pending{cmd: cmd})
				if isControlCommand(cmd.Name) {
					triggerFlush = true
				}
			}
			if len(batch) >= maxPipelineDepth {
				triggerFlush = true
			}
			if triggerFlush {
				if !flushAndReset() {
					return
				}
			}
		}
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			if errors.Is(err, io.EOF) {
				flushAndReset()
			}
			return
		}
	}
}

func isControlCommand(name string) bool {
	switch name {
	case "FLUSHDB", "INFO", "PING":
		return true
	default:
		return false
	}
}

// flush executes every pending item in order and writes the coalesced
// response stream in a single Write call, using a pooled buffer. Returns
// false if the write failed (the caller should close the connection).
func (c *connection) flush(batch []pending) bool {
	buf := c.bufs.Acquire(bufpool.Small)
	bb := bytes.NewBuffer(buf.B)

	for _, item := range batch {
		var resp protocol.Response
		if item.err != nil {
			resp = protocol.Err{Message: item.err.Error()}
		} else {
			resp = c.exec.Execute(item.cmd)
		}
		if err := protocol.Render(bb, resp); err != nil {
			c.logf("render error: %v", err)
			buf.B = bb.Bytes()[:0]
			buf.Release()
			return false
		}
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		buf.B = bb.Bytes()[:0]
		buf.Release()
		return false
	}
	_, err := c.conn.Write(bb.Bytes())
	buf.B = bb.Bytes()[:0]
	buf.Release()
	if err != nil {
		c.logf("write error: %v", err)
		return false
	}
	return true
}

func (c *connection) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf("[conn %s] "+format, append([]any{c.id}, args...)...)
}
