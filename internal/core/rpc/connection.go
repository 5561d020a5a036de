package rpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/registry"
	"github.com/zeusync/zeusrpc/internal/core/scheduler"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/core/wire"
)

// Invoker performs a remote call and waits for its response.
type Invoker interface {
	Call(ctx context.Context, code int32, payload []byte) ([]byte, error)
}

// environment is what every ServiceConnection of a runtime shares.
type environment struct {
	registry  registry.Registry
	transport transport.Transport
	loop      *scheduler.Loop
	heartbeat Heartbeat
	ids       func() uint64
	ready     func() error
	logger    log.Log
}

// ServiceConnection is the caller-side handle for one logical remote
// service. It connects lazily on the first invocation and holds at most one
// physical connection at a time.
type ServiceConnection struct {
	key      ServiceKey
	env      *environment
	consumer *Consumer
	logger   log.Log

	mu          sync.Mutex
	conn        transport.Connection
	address     string
	generation  uint64
	beating     transport.Connection
	pingTask    *scheduler.Task
	timeoutTask *scheduler.Task

	connects  atomic.Uint64
	timeouts  atomic.Uint64
	busyFails atomic.Uint64
}

func newServiceConnection(key ServiceKey, env *environment) *ServiceConnection {
	return &ServiceConnection{
		key:      key,
		env:      env,
		consumer: NewConsumer(env.ids),
		logger: env.logger.With(
			log.String("component", "service_connection"),
			log.String("service", key.String()),
		),
	}
}

// Key identifies the remote service this connection invokes.
func (sc *ServiceConnection) Key() ServiceKey {
	return sc.key
}

// Address is the cached resolved address, empty when not resolved.
func (sc *ServiceConnection) Address() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.address
}

// Connected reports whether a physical connection is currently held.
func (sc *ServiceConnection) Connected() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn != nil && !sc.conn.IsClosed()
}

// Consumer exposes the outstanding calls of this service.
func (sc *ServiceConnection) Consumer() *Consumer {
	return sc.consumer
}

// Call sends a request with a fresh correlation id and waits for the matching
// response. A fault response is returned as *RemoteError.
func (sc *ServiceConnection) Call(ctx context.Context, code int32, payload []byte) ([]byte, error) {
	if !ValidCode(code) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCode, code)
	}

	id, done := sc.consumer.Register()
	if err := sc.Send(ctx, code, id, payload); err != nil {
		sc.consumer.Forget(id)
		return nil, err
	}

	select {
	case p := <-done:
		if p.Type < 0 {
			return nil, &RemoteError{Code: -p.Type, Message: string(p.Payload)}
		}
		return p.Payload, nil
	case <-ctx.Done():
		sc.consumer.Forget(id)
		return nil, ctx.Err()
	}
}

// Send transmits one packet, connecting first if no connection is held.
// When the transport accepts less than the whole packet the connection is torn down and a busy
// error is returned; the next Send resolves and connects again.
func (sc *ServiceConnection) Send(ctx context.Context, code int32, correlationID uint64, payload []byte) error {
	if err := sc.env.ready(); err != nil {
		return err
	}
	conn, err := sc.acquire(ctx)
	if err != nil {
		return err
	}

	if written := conn.Send(code, correlationID, payload); written < wire.HeaderSize+len(payload) {
		sc.busyFails.Add(1)
		sc.teardown(conn)
		sc.logger.Warn("Service busy, connection dropped",
			log.Int32("code", code),
			log.String("remote", conn.RemoteAddr()),
		)
		return newError(ErrorCodeServiceBusy, fmt.Sprintf("service %s is busy", sc.key), nil).
			WithContext("service", sc.key.String()).
			WithContext("code", code)
	}
	return nil
}

// acquire returns the held connection or establishes one. Concurrent callers
// are serialized so that one cold start produces exactly one connect.
func (sc *ServiceConnection) acquire(ctx context.Context) (transport.Connection, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.conn != nil {
		if !sc.conn.IsClosed() {
			return sc.conn, nil
		}
		sc.unbindLocked(sc.conn)
	}

	if sc.address == "" {
		address, err := sc.env.registry.Resolve(ctx, sc.key.ServiceName())
		if err != nil {
			sc.logger.Error("Service resolution failed", log.Error(err))
			return nil, newError(ErrorCodeResolutionFailed,
				fmt.Sprintf("failed to resolve service %s", sc.key), err).
				WithContext("service", sc.key.String())
		}
		sc.address = address
	}

	sc.logger.Info("Connecting to service", log.String("address", sc.address))
	conn, err := sc.env.transport.Dial(ctx, sc.address, sc)
	if err != nil {
		address := sc.address
		sc.address = ""
		sc.logger.Error("Service connect failed", log.String("address", address), log.Error(err))
		return nil, newError(ErrorCodeConnectFailed,
			fmt.Sprintf("failed to connect to service %s at %s", sc.key, address), err).
			WithContext("service", sc.key.String()).
			WithContext("address", address)
	}

	sc.conn = conn
	sc.connects.Add(1)
	return conn, nil
}

// teardown forgets conn and its cached address, then closes it.
func (sc *ServiceConnection) teardown(conn transport.Connection) {
	sc.mu.Lock()
	sc.unbindLocked(conn)
	sc.mu.Unlock()

	if err := conn.Close(); err != nil {
		sc.logger.Debug("Close after teardown failed", log.Error(err))
	}
}

func (sc *ServiceConnection) unbindLocked(conn transport.Connection) {
	if sc.conn == conn {
		sc.conn = nil
		sc.address = ""
	}
	if sc.beating == conn {
		sc.cancelHeartbeatLocked()
	}
}

func (sc *ServiceConnection) onConnected(conn transport.Connection) {
	sc.logger.Debug("Service connected", log.String("remote", conn.RemoteAddr()))
	sc.schedule(conn)
}

// onPacket handles a packet arriving on a connection this service dialed.
func (sc *ServiceConnection) onPacket(conn transport.Connection, p wire.Packet) {
	sc.schedule(conn)
	if p.Type == wire.CodePong {
		return
	}
	if !sc.consumer.Deliver(p) {
		sc.logger.Debug("Dropping unmatched response",
			log.Int32("code", p.Type),
			log.Uint64("correlation_id", p.CorrelationID),
		)
	}
}

func (sc *ServiceConnection) onDisconnected(conn transport.Connection) {
	sc.mu.Lock()
	sc.unbindLocked(conn)
	sc.mu.Unlock()
	sc.logger.Info("Service disconnected", log.String("remote", conn.RemoteAddr()))
}

// Stats is a snapshot of connection lifecycle counters.
type Stats struct {
	Connects  uint64
	Timeouts  uint64
	BusyFails uint64
	Pending   int
}

// Stats returns the current counters.
func (sc *ServiceConnection) Stats() Stats {
	return Stats{
		Connects:  sc.connects.Load(),
		Timeouts:  sc.timeouts.Load(),
		BusyFails: sc.busyFails.Load(),
		Pending:   sc.consumer.Pending(),
	}
}

// Close drops the held connection, if any.
func (sc *ServiceConnection) Close() error {
	sc.mu.Lock()
	conn := sc.conn
	if conn != nil {
		sc.unbindLocked(conn)
	}
	sc.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

var _ Invoker = (*ServiceConnection)(nil)
