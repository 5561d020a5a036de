package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
)

var _ Transport = (*TCPTransport)(nil)

// TCPTransport frames packets directly on TCP connections.
type TCPTransport struct {
	*Base

	mu       sync.Mutex
	listener net.Listener
}

func NewTCPTransport(handler Handler, config Config, logger log.Log) *TCPTransport {
	return &TCPTransport{Base: NewBase("tcp", handler, config, logger)}
}

// TCPFactory adapts NewTCPTransport to a Factory.
func TCPFactory(config Config, logger log.Log) Factory {
	return func(handler Handler) Transport {
		return NewTCPTransport(handler, config, logger)
	}
}

func (t *TCPTransport) Listen(ctx context.Context, addr string) error {
	if t.IsClosed() {
		return ErrTransportClosed
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		t.Logger().Error("Failed to listen", log.String("addr", addr), log.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrListenFailed, addr, err)
	}

	t.mu.Lock()
	if t.listener != nil {
		t.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("%w: already listening on %s", ErrListenFailed, t.listener.Addr())
	}
	t.listener = ln
	t.mu.Unlock()

	t.Logger().Info("Listening", log.String("addr", ln.Addr().String()))
	go t.acceptLoop(ln)
	return nil
}

func (t *TCPTransport) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !t.IsClosed() && !errors.Is(err, net.ErrClosed) {
				t.Logger().Error("Accept failed", log.Error(err))
			}
			return
		}
		t.Serve(NewStreamFramer(nc, nc.RemoteAddr().String(), t.Config().MaxPayload), nil, false)
	}
}

func (t *TCPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *TCPTransport) Dial(ctx context.Context, addr string, attachment any) (Connection, error) {
	if t.IsClosed() {
		return nil, ErrTransportClosed
	}

	d := net.Dialer{Timeout: t.Config().DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.Logger().Warn("Dial failed", log.String("addr", addr), log.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrDialFailed, addr, err)
	}

	return t.Serve(NewStreamFramer(nc, nc.RemoteAddr().String(), t.Config().MaxPayload), attachment, true), nil
}

func (t *TCPTransport) Close() error {
	if !t.Shutdown() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}
