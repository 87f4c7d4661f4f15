// Package client implements the client-side connection pool (C8): a
// per-address set of idle sockets behind a counting permit, with idle-TTL
// eviction, a liveness peek on acquire, and an optional pre-warm task.
// Shaped after the per-key pool in
// _examples/other_examples/993ebde8_oriys-nova__internal-pool-pool.go.go's
// Pool/functionPool (sync.Map of per-key pools, one pool created lazily per
// key via LoadOrStore) — adapted from leasing VMs to leasing TCP sockets.
package client

import (
	"context"
	"net"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"

	diskdb "github.com/transybao1393/diskdb-go"
)

// Config configures a Pool. Zero values are replaced by the defaults
// spec.md §4.8 names.
type Config struct {
	MaxConnections int           // default 10 — counting permit per address
	MinConnections int           // pre-warmed idle sockets per address; default 0
	IdleTTL        time.Duration // default 5 minutes
	ConnectTimeout time.Duration // default 5 seconds
}

func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

// Pool is a registry of per-address addrPools, created lazily on first use.
type Pool struct {
	cfg   Config
	addrs sync.Map // map[string]*addrPool
}

// New builds a Pool. Call PreWarm to eagerly open MinConnections sockets for
// an address instead of waiting for the first Acquire.
func New(cfg Config) *Pool {
	return &Pool{cfg: cfg.withDefaults()}
}

func (p *Pool) getOrCreate(addr string) *addrPool {
	if v, ok := p.addrs.Load(addr); ok {
		return v.(*addrPool)
	}
	ap := newAddrPool(addr, p.cfg)
	actual, _ := p.addrs.LoadOrStore(addr, ap)
	return actual.(*addrPool)
}

// PreWarm opens (up to) Config.MinConnections idle sockets to addr right
// away, rather than lazily on first Acquire.
func (p *Pool) PreWarm(addr string) {
	p.getOrCreate(addr).preWarm()
}

// Acquire returns a live connection to addr: an idle, still-alive one if the
// pool has one queued, otherwise a freshly dialed one. It blocks on the
// per-address counting permit until ctx is done or a slot frees up.
func (p *Pool) Acquire(ctx context.Context, addr string) (*Conn, error) {
	return p.getOrCreate(addr).acquire(ctx)
}

// addrPool holds the idle-connection queue and counting permit for one
// remote address.
type addrPool struct {
	addr string
	cfg  Config

	permits chan struct{}

	mu   sync.Mutex
	fifo []string // idle-entry ids, oldest first

	idle cache.Cache[string, net.Conn]
}

func newAddrPool(addr string, cfg Config) *addrPool {
	return &addrPool{
		addr:    addr,
		cfg:     cfg,
		permits: make(chan struct{}, cfg.MaxConnections),
		idle:    cache.NewCache[string, net.Conn]().WithTTL(cfg.IdleTTL),
	}
}

// preWarm dials MinConnections sockets and parks them on the idle queue
// directly, the same as the ground truth's warm_pool: idle sockets don't
// hold a permit, since a permit is only taken at acquire time (whether it
// ends up serving an idle entry or a freshly dialed one). Acquiring a
// permit here too would permanently shrink effective capacity by
// MinConnections for the pool's lifetime.
func (ap *addrPool) preWarm() {
	for i := 0; i < ap.cfg.MinConnections; i++ {
		conn, err := net.DialTimeout("tcp", ap.addr, ap.cfg.ConnectTimeout)
		if err != nil {
			return
		}
		ap.enqueueIdle(conn)
	}
}

// acquire blocks for a permit, then tries idle entries oldest-first,
// evicting expired or dead ones, before dialing fresh.
func (ap *addrPool) acquire(ctx context.Context) (*Conn, error) {
	select {
	case ap.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		id, ok := ap.popFIFO()
		if !ok {
			break
		}
		c, found := ap.idle.Get(id)
		if !found {
			continue // idle TTL already expired this entry
		}
		if isAlive(c) {
			return &Conn{conn: c, pool: ap}, nil
		}
		c.Close()
	}

	conn, err := net.DialTimeout("tcp", ap.addr, ap.cfg.ConnectTimeout)
	if err != nil {
		<-ap.permits
		return nil, diskdb.WithStack(err)
	}
	return &Conn{conn: conn, pool: ap}, nil
}

func (ap *addrPool) enqueueIdle(conn net.Conn) {
	id := diskdb.NextUniqueID()
	ap.idle.Set(id, conn, ap.cfg.IdleTTL)
	ap.mu.Lock()
	ap.fifo = append(ap.fifo, id)
	ap.mu.Unlock()
}

func (ap *addrPool) popFIFO() (string, bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if len(ap.fifo) == 0 {
		return "", false
	}
	id := ap.fifo[0]
	ap.fifo = ap.fifo[1:]
	return id, true
}

// release returns conn to the idle queue if it is still alive, otherwise
// closes it; either way the permit is freed.
func (ap *addrPool) release(conn net.Conn) {
	defer func() { <-ap.permits }()
	if !isAlive(conn) {
		conn.Close()
		return
	}
	ap.enqueueIdle(conn)
}

// discard closes conn without re-queuing it (used when the caller knows the
// connection is broken) and frees the permit.
func (ap *addrPool) discard(conn net.Conn) {
	conn.Close()
	<-ap.permits
}
