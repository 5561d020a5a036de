package rpc

import (
	"context"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/core/wire"
	"github.com/zeusync/zeusrpc/pkg/concurrent"
)

// Router receives every transport event of a runtime. Connections this
// runtime dialed carry their ServiceConnection as attachment; all others were
// accepted from remote callers.
type Router struct {
	ctx      context.Context
	provider *Provider
	executor concurrent.Executor
	logger   log.Log
}

// NewRouter returns a router that serves provider on executor. Handlers run
// under ctx.
func NewRouter(ctx context.Context, provider *Provider, executor concurrent.Executor, logger log.Log) *Router {
	if logger == nil {
		logger = log.Provide()
	}
	return &Router{
		ctx:      ctx,
		provider: provider,
		executor: executor,
		logger:   logger.With(log.String("component", "router")),
	}
}

func bound(c transport.Connection) *ServiceConnection {
	sc, _ := c.Attachment().(*ServiceConnection)
	return sc
}

// OnConnect arms the heartbeat of dialed connections.
func (r *Router) OnConnect(c transport.Connection) {
	if sc := bound(c); sc != nil {
		sc.onConnected(c)
		return
	}
	r.logger.Debug("Caller connected", log.String("remote", c.RemoteAddr()), log.String("conn_id", c.ID()))
}

// OnData hands packets on dialed connections to their ServiceConnection.
// On accepted connections it answers pings inline and queues requests for
// the provider.
func (r *Router) OnData(c transport.Connection, p wire.Packet) {
	if sc := bound(c); sc != nil {
		sc.onPacket(c, p)
		return
	}

	switch p.Type {
	case wire.CodePing:
		if written := c.Send(wire.CodePong, p.CorrelationID, nil); written == 0 {
			r.logger.Debug("Pong not sent", log.String("remote", c.RemoteAddr()))
		}
		return
	case wire.CodePong:
		r.logger.Debug("Ignoring pong on accepted connection", log.String("remote", c.RemoteAddr()))
		return
	}

	if err := r.executor.Submit(func() { r.dispatch(c, p) }); err != nil {
		r.logger.Warn("Request dropped",
			log.Int32("code", p.Type),
			log.Uint64("correlation_id", p.CorrelationID),
			log.Error(err),
		)
	}
}

// OnDisconnected unbinds a dialed connection from its ServiceConnection.
func (r *Router) OnDisconnected(c transport.Connection) {
	if sc := bound(c); sc != nil {
		sc.onDisconnected(c)
		return
	}
	r.logger.Debug("Caller disconnected", log.String("remote", c.RemoteAddr()), log.String("conn_id", c.ID()))
}

func (r *Router) dispatch(c transport.Connection, p wire.Packet) {
	r.provider.Invoke(r.ctx, p.Type, p.Payload, func(code int32, payload []byte) {
		expected := wire.HeaderSize + len(payload)
		if written := c.Send(code, p.CorrelationID, payload); written != expected {
			r.logger.Error("Response size mismatch",
				log.Int32("code", code),
				log.Uint64("correlation_id", p.CorrelationID),
				log.Int("expected", expected),
				log.Int("written", written),
			)
		}
	})
}

var _ transport.Handler = (*Router)(nil)
