// Package websocket carries runtime packets over WebSocket connections, one
// binary message per packet using the same header as the stream framing.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/core/wire"
)

var _ transport.Transport = (*Transport)(nil)

// DefaultPath is the HTTP path upgraded to WebSocket.
const DefaultPath = "/rpc"

var ErrUnexpectedMessage = errors.New("websocket: unexpected non-binary message")

type Transport struct {
	*transport.Base
	path     string
	upgrader websocket.Upgrader
	dialer   websocket.Dialer

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func NewTransport(handler transport.Handler, config transport.Config, path string, logger log.Log) *Transport {
	if path == "" {
		path = DefaultPath
	}
	base := transport.NewBase("websocket", handler, config, logger)
	return &Transport{
		Base: base,
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		dialer: websocket.Dialer{
			HandshakeTimeout: base.Config().DialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

func Factory(config transport.Config, path string, logger log.Log) transport.Factory {
	return func(handler transport.Handler) transport.Transport {
		return NewTransport(handler, config, path, logger)
	}
}

func (t *Transport) Listen(ctx context.Context, addr string) error {
	if t.IsClosed() {
		return transport.ErrTransportClosed
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		t.Logger().Error("Failed to listen", log.String("addr", addr), log.Error(err))
		return fmt.Errorf("%w: %s: %w", transport.ErrListenFailed, addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(t.path, t.handleUpgrade)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.mu.Lock()
	if t.server != nil {
		t.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("%w: already listening", transport.ErrListenFailed)
	}
	t.server = srv
	t.listener = ln
	t.mu.Unlock()

	t.Logger().Info("Listening", log.String("addr", ln.Addr().String()), log.String("path", t.path))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logger().Error("HTTP server stopped", log.Error(err))
		}
	}()
	return nil
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.Logger().Warn("Upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}
	if t.IsClosed() {
		_ = ws.Close()
		return
	}
	t.Serve(newFramer(ws, t.Config().MaxPayload), nil, false)
}

func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *Transport) Dial(ctx context.Context, addr string, attachment any) (transport.Connection, error) {
	if t.IsClosed() {
		return nil, transport.ErrTransportClosed
	}

	url := "ws://" + addr + t.path
	ws, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		t.Logger().Warn("Dial failed", log.String("url", url), log.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrDialFailed, url, err)
	}

	return t.Serve(newFramer(ws, t.Config().MaxPayload), attachment, true), nil
}

func (t *Transport) Close() error {
	if !t.Shutdown() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

type framer struct {
	ws         *websocket.Conn
	maxPayload int
}

func newFramer(ws *websocket.Conn, maxPayload int) *framer {
	ws.SetReadLimit(int64(maxPayload + wire.HeaderSize))
	return &framer{ws: ws, maxPayload: maxPayload}
}

func (f *framer) ReadPacket() (wire.Packet, error) {
	kind, data, err := f.ws.ReadMessage()
	if err != nil {
		return wire.Packet{}, err
	}
	if kind != websocket.BinaryMessage {
		return wire.Packet{}, ErrUnexpectedMessage
	}
	return wire.Unmarshal(data, f.maxPayload)
}

func (f *framer) WritePacket(p wire.Packet) error {
	return f.ws.WriteMessage(websocket.BinaryMessage, wire.Marshal(p))
}

func (f *framer) Flush() error {
	return nil
}

func (f *framer) RemoteAddr() string {
	return f.ws.RemoteAddr().String()
}

func (f *framer) Close() error {
	return f.ws.Close()
}
