package rpc

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/registry"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/core/wire"
)

var errDialRefused = errors.New("connection refused")

type fakeTransport struct {
	handler transport.Handler

	dialDelay time.Duration
	dialErr   atomic.Pointer[error]
	dials     atomic.Int32

	// sendResult overrides the byte count returned by Send.
	sendResult atomic.Pointer[func(p wire.Packet) int]
	// onSend observes every accepted packet.
	onSend func(c *fakeConn, p wire.Packet)

	mu    sync.Mutex
	conns []*fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (ft *fakeTransport) factory() transport.Factory {
	return func(h transport.Handler) transport.Transport {
		ft.handler = h
		return ft
	}
}

func (ft *fakeTransport) setDialErr(err error) {
	if err == nil {
		ft.dialErr.Store(nil)
		return
	}
	ft.dialErr.Store(&err)
}

func (ft *fakeTransport) setSendResult(fn func(p wire.Packet) int) {
	if fn == nil {
		ft.sendResult.Store(nil)
		return
	}
	ft.sendResult.Store(&fn)
}

func (ft *fakeTransport) Listen(context.Context, string) error { return nil }

func (ft *fakeTransport) Addr() string { return "" }

func (ft *fakeTransport) Dial(_ context.Context, addr string, attachment any) (transport.Connection, error) {
	ft.dials.Add(1)
	if ft.dialDelay > 0 {
		time.Sleep(ft.dialDelay)
	}
	if errp := ft.dialErr.Load(); errp != nil {
		return nil, *errp
	}

	c := &fakeConn{id: strconv.Itoa(int(ft.dials.Load())), remote: addr, owner: ft}
	c.Attach(attachment)
	ft.mu.Lock()
	ft.conns = append(ft.conns, c)
	ft.mu.Unlock()

	go ft.handler.OnConnect(c)
	return c, nil
}

func (ft *fakeTransport) Stats() transport.Stats { return transport.Stats{} }

func (ft *fakeTransport) Close() error {
	ft.mu.Lock()
	conns := append([]*fakeConn(nil), ft.conns...)
	ft.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

func (ft *fakeTransport) lastConn() *fakeConn {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.conns) == 0 {
		return nil
	}
	return ft.conns[len(ft.conns)-1]
}

type fakeConn struct {
	id     string
	remote string
	owner  *fakeTransport

	closed atomic.Bool
	closes atomic.Int32

	mu         sync.Mutex
	sent       []wire.Packet
	attachment any
}

func newAcceptedConn() *fakeConn {
	return &fakeConn{id: "accepted", remote: "10.0.0.9:5000"}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return c.remote }

func (c *fakeConn) Send(code int32, id uint64, payload []byte) int {
	if c.closed.Load() {
		return 0
	}
	p := wire.Packet{Type: code, CorrelationID: id, Payload: payload}
	n := wire.HeaderSize + len(payload)
	if c.owner != nil {
		if fn := c.owner.sendResult.Load(); fn != nil {
			n = (*fn)(p)
		}
	}
	if n == 0 {
		return 0
	}

	c.mu.Lock()
	c.sent = append(c.sent, p)
	c.mu.Unlock()
	if c.owner != nil && c.owner.onSend != nil {
		c.owner.onSend(c, p)
	}
	return n
}

func (c *fakeConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.closes.Add(1)
	if c.owner != nil {
		go c.owner.handler.OnDisconnected(c)
	}
	return nil
}

func (c *fakeConn) IsClosed() bool { return c.closed.Load() }

func (c *fakeConn) Attach(v any) {
	c.mu.Lock()
	c.attachment = v
	c.mu.Unlock()
}

func (c *fakeConn) Attachment() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

func (c *fakeConn) packets() []wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Packet(nil), c.sent...)
}

func (c *fakeConn) count(code int32) int {
	n := 0
	for _, p := range c.packets() {
		if p.Type == code {
			n++
		}
	}
	return n
}

const testService = "account"

func newTestRegistry() *registry.MemoryRegistry {
	return registry.NewStaticRegistry(map[string]string{testService: "10.0.0.1:7001"})
}

func newTestRuntime(t *testing.T, ft *fakeTransport, reg registry.Registry, interval time.Duration) *Runtime {
	t.Helper()

	rt, err := NewRuntime(Options{
		Registry:          reg,
		Transport:         ft.factory(),
		HeartbeatInterval: interval,
		Workers:           2,
		WorkerQueue:       16,
		Logger:            log.NewNop(),
	})
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Stop() })
	return rt
}
