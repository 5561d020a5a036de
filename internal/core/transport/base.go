package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
)

// Stats is a snapshot of transport counters.
type Stats struct {
	ConnectionsAccepted uint64
	ConnectionsDialed   uint64
	ConnectionsActive   uint64
	BytesSent           uint64
	BytesReceived       uint64
	SendsRejected       uint64
	Uptime              time.Duration
}

type counters struct {
	accepted      atomic.Uint64
	dialed        atomic.Uint64
	active        atomic.Int64
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	rejected      atomic.Uint64
}

// Base provides connection bookkeeping shared by transport implementations.
type Base struct {
	name      string
	handler   Handler
	config    Config
	logger    log.Log
	startTime time.Time
	counters  counters
	closed    atomic.Bool

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewBase(name string, handler Handler, config Config, logger log.Log) *Base {
	if logger == nil {
		logger = log.Provide()
	}
	return &Base{
		name:      name,
		handler:   handler,
		config:    config.withDefaults(),
		logger:    logger.With(log.String("transport", name)),
		startTime: time.Now(),
		conns:     make(map[*Conn]struct{}),
	}
}

// Serve wraps framer in a connection, tracks it and starts its loops.
// Dialed connections carry the caller's attachment from the start.
func (b *Base) Serve(framer Framer, attachment any, dialed bool) *Conn {
	c := newConn(b, framer, attachment)

	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()

	if dialed {
		b.counters.dialed.Add(1)
	} else {
		b.counters.accepted.Add(1)
	}
	b.counters.active.Add(1)

	b.logger.Debug("Connection established",
		log.String("connection_id", c.ID()),
		log.String("remote_addr", c.RemoteAddr()),
		log.Bool("dialed", dialed))

	c.start()
	return c
}

func (b *Base) forget(c *Conn) {
	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
	b.counters.active.Add(-1)
}

func (b *Base) Stats() Stats {
	active := b.counters.active.Load()
	if active < 0 {
		active = 0
	}
	return Stats{
		ConnectionsAccepted: b.counters.accepted.Load(),
		ConnectionsDialed:   b.counters.dialed.Load(),
		ConnectionsActive:   uint64(active),
		BytesSent:           b.counters.bytesSent.Load(),
		BytesReceived:       b.counters.bytesReceived.Load(),
		SendsRejected:       b.counters.rejected.Load(),
		Uptime:              time.Since(b.startTime),
	}
}

func (b *Base) Config() Config {
	return b.config
}

func (b *Base) Logger() log.Log {
	return b.logger
}

func (b *Base) IsClosed() bool {
	return b.closed.Load()
}

// Shutdown marks the transport closed and closes every tracked connection.
// It reports whether this call performed the shutdown.
func (b *Base) Shutdown() bool {
	if !b.closed.CompareAndSwap(false, true) {
		return false
	}

	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}

	stats := b.Stats()
	b.logger.Info("Transport closing",
		log.Duration("uptime", stats.Uptime),
		log.Uint64("connections_accepted", stats.ConnectionsAccepted),
		log.Uint64("connections_dialed", stats.ConnectionsDialed),
		log.Uint64("sends_rejected", stats.SendsRejected))
	return true
}
