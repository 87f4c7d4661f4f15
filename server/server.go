// Package server implements the connection handler (C6) and accept loop
// (C7): a raw-socket TCP listener tuned per spec.md §4.7, spawning one
// connection state machine (conn.go) per accepted socket, with an optional
// TLS upgrade.
package server

import (
	"crypto/tls"
	"errors"
	"log"
	"net"

	"github.com/google/uuid"

	diskdb "github.com/transybao1393/diskdb-go"
	"github.com/transybao1393/diskdb-go/bufpool"
	"github.com/transybao1393/diskdb-go/executor"
)

// defaultMaxConnections is the cap spec.md §6 names for DISKDB_MAX_CONNECTIONS.
const defaultMaxConnections = 1000

// Config configures a Server.
type Config struct {
	Addr           string
	TLSConfig      *tls.Config // nil disables TLS
	MaxConnections int         // 0 => defaultMaxConnections
	Logger         *log.Logger // nil disables connection-level logging
}

// Server accepts connections on a tuned TCP listener and dispatches each to
// the executor via an independent goroutine, bounded by a counting
// semaphore at MaxConnections.
type Server struct {
	listener net.Listener
	tls      *tls.Config
	sem      chan struct{}
	exec     *executor.Executor
	bufs     *bufpool.Pool
	logger   *log.Logger
}

// Listen binds cfg.Addr (SO_REUSEADDR/SO_REUSEPORT, backlog >= 1024) and
// returns a Server ready to Serve.
func Listen(cfg Config, exec *executor.Executor, bufs *bufpool.Pool) (*Server, error) {
	ln, err := listenTCP(cfg.Addr)
	if err != nil {
		return nil, diskdb.WithStack(err)
	}
	max := cfg.MaxConnections
	if max <= 0 {
		max = defaultMaxConnections
	}
	return &Server{
		listener: ln,
		tls:      cfg.TLSConfig,
		sem:      make(chan struct{}, max),
		exec:     exec,
		bufs:     bufs,
		logger:   cfg.Logger,
	}, nil
}

// Addr returns the bound local address, useful when Addr was "host:0".
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Serve runs the accept loop until the listener is closed. Accept errors
// are logged and ignored, per spec.md §4.7 ("the accept loop is infinite;
// accept errors are logged and ignored").
func (s *Server) Serve() error {
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return diskdb.WithStack(err)
			}
			s.logf("accept error: %v", err)
			continue
		}

		c := raw
		if s.tls != nil {
			c = tls.Server(raw, s.tls)
		}

		select {
		case s.sem <- struct{}{}:
			go s.handle(c)
		default:
			// At the connection cap: reject immediately rather than queuing
			// unboundedly in memory.
			c.Close()
		}
	}
}

func (s *Server) handle(c net.Conn) {
	defer func() { <-s.sem }()
	conn := &connection{
		id:     uuid.NewString(),
		conn:   c,
		exec:   s.exec,
		bufs:   s.bufs,
		logger: s.logger,
	}
	conn.serve()
}

func (s *Server) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
