package rpc

import (
	"time"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/core/wire"
)

// DefaultHeartbeatInterval is the delay before an idle connection is probed.
const DefaultHeartbeatInterval = 3000 * time.Millisecond

// Heartbeat holds the liveness timing of dialed connections. The timeout is
// always twice the interval.
type Heartbeat struct {
	Interval time.Duration
}

// NewHeartbeat returns the timing for interval, or the default when interval
// is not positive.
func NewHeartbeat(interval time.Duration) Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return Heartbeat{Interval: interval}
}

// Timeout is how long a connection may stay silent before it is closed.
func (h Heartbeat) Timeout() time.Duration {
	return 2 * h.Interval
}

// schedule replaces the pending ping and timeout tasks with a fresh pair
// measured from now. Both tasks are tagged with a generation so that a task
// superseded after it became due does nothing. A signal on a connection that
// is no longer held still rearms the pair for that connection.
func (sc *ServiceConnection) schedule(conn transport.Connection) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if conn.IsClosed() || (sc.conn != nil && sc.conn != conn) {
		return
	}
	sc.cancelHeartbeatLocked()
	sc.beating = conn

	gen := sc.generation
	loop := sc.env.loop
	sc.pingTask = loop.PostDelayed(sc.env.heartbeat.Interval, func() { sc.ping(conn, gen) })
	sc.timeoutTask = loop.PostDelayed(sc.env.heartbeat.Timeout(), func() { sc.expire(conn, gen) })
}

func (sc *ServiceConnection) cancelHeartbeatLocked() {
	sc.generation++
	sc.env.loop.Cancel(sc.pingTask)
	sc.env.loop.Cancel(sc.timeoutTask)
	sc.pingTask = nil
	sc.timeoutTask = nil
	sc.beating = nil
}

func (sc *ServiceConnection) current(gen uint64) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.generation == gen
}

func (sc *ServiceConnection) ping(conn transport.Connection, gen uint64) {
	if !sc.current(gen) {
		return
	}
	if written := conn.Send(wire.CodePing, sc.env.ids(), nil); written == 0 {
		sc.logger.Debug("Ping not sent", log.String("remote", conn.RemoteAddr()))
	}
}

func (sc *ServiceConnection) expire(conn transport.Connection, gen uint64) {
	sc.mu.Lock()
	if sc.generation != gen {
		sc.mu.Unlock()
		return
	}
	sc.cancelHeartbeatLocked()
	sc.mu.Unlock()

	sc.timeouts.Add(1)
	sc.logger.Error("Connection stalled, no pong received",
		log.String("remote", conn.RemoteAddr()),
		log.Duration("timeout", sc.env.heartbeat.Timeout()),
	)
	if err := conn.Close(); err != nil {
		sc.logger.Debug("Close after heartbeat timeout failed", log.Error(err))
	}
}
