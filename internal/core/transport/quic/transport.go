// Package quic carries runtime packets over QUIC. Each logical connection is
// one QUIC connection with a single bidirectional stream opened by the dialer.
package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/transport"
)

var _ transport.Transport = (*Transport)(nil)

// Config holds QUIC-specific settings.
type Config struct {
	MaxIdleTimeout       time.Duration
	KeepAlivePeriod      time.Duration
	HandshakeIdleTimeout time.Duration

	// TLSConfig is generated when nil.
	TLSConfig *tls.Config
}

func DefaultConfig() Config {
	return Config{
		MaxIdleTimeout:       30 * time.Second,
		KeepAlivePeriod:      15 * time.Second,
		HandshakeIdleTimeout: 10 * time.Second,
	}
}

type Transport struct {
	*transport.Base
	tlsConfig  *tls.Config
	quicConfig *quic.Config

	mu       sync.Mutex
	listener *quic.Listener
	cancel   context.CancelFunc
}

// NewTransport builds a QUIC transport, generating self-signed TLS material
// when qconfig carries none.
func NewTransport(handler transport.Handler, config transport.Config, qconfig Config, logger log.Log) (*Transport, error) {
	if qconfig.TLSConfig == nil {
		tlsConfig, err := GenerateTLSConfig()
		if err != nil {
			return nil, err
		}
		qconfig.TLSConfig = tlsConfig
	}
	return newTransport(handler, config, qconfig, logger), nil
}

func newTransport(handler transport.Handler, config transport.Config, qconfig Config, logger log.Log) *Transport {
	t := &Transport{
		Base:      transport.NewBase("quic", handler, config, logger),
		tlsConfig: qconfig.TLSConfig,
		quicConfig: &quic.Config{
			MaxIdleTimeout:       qconfig.MaxIdleTimeout,
			KeepAlivePeriod:      qconfig.KeepAlivePeriod,
			HandshakeIdleTimeout: qconfig.HandshakeIdleTimeout,
		},
	}

	t.Logger().Info("QUIC transport initialized",
		log.Duration("idle_timeout", qconfig.MaxIdleTimeout),
		log.Duration("keep_alive", qconfig.KeepAlivePeriod))

	return t
}

// Factory adapts NewTransport to a transport.Factory. The TLS material is
// generated once so every transport built by the factory shares it.
func Factory(config transport.Config, qconfig Config, logger log.Log) (transport.Factory, error) {
	if qconfig.TLSConfig == nil {
		tlsConfig, err := GenerateTLSConfig()
		if err != nil {
			return nil, err
		}
		qconfig.TLSConfig = tlsConfig
	}
	return func(handler transport.Handler) transport.Transport {
		return newTransport(handler, config, qconfig, logger)
	}, nil
}

func (t *Transport) Listen(ctx context.Context, addr string) error {
	if t.IsClosed() {
		return transport.ErrTransportClosed
	}

	ln, err := quic.ListenAddr(addr, t.tlsConfig, t.quicConfig)
	if err != nil {
		t.Logger().Error("Failed to create QUIC listener", log.String("addr", addr), log.Error(err))
		return fmt.Errorf("%w: %s: %w", transport.ErrListenFailed, addr, err)
	}

	t.mu.Lock()
	if t.listener != nil {
		t.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("%w: already listening", transport.ErrListenFailed)
	}
	acceptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.listener = ln
	t.cancel = cancel
	t.mu.Unlock()

	t.Logger().Info("QUIC listener created", log.String("addr", ln.Addr().String()))
	go t.acceptLoop(acceptCtx, ln)
	return nil
}

func (t *Transport) acceptLoop(ctx context.Context, ln *quic.Listener) {
	for {
		qc, err := ln.Accept(ctx)
		if err != nil {
			if !t.IsClosed() && ctx.Err() == nil {
				t.Logger().Error("Accept failed", log.Error(err))
			}
			return
		}
		go t.acceptStream(ctx, qc)
	}
}

func (t *Transport) acceptStream(ctx context.Context, qc *quic.Conn) {
	stream, err := qc.AcceptStream(ctx)
	if err != nil {
		t.Logger().Debug("No stream opened by peer", log.String("remote_addr", qc.RemoteAddr().String()), log.Error(err))
		_ = qc.CloseWithError(0, "no stream")
		return
	}
	t.Serve(t.framer(qc, stream), nil, false)
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

	dialCtx, cancel := context.WithTimeout(ctx, t.Config().DialTimeout)
	defer cancel()

	tlsConfig := t.tlsConfig.Clone()
	if tlsConfig.ServerName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			tlsConfig.ServerName = host
		}
	}

	qc, err := quic.DialAddr(dialCtx, addr, tlsConfig, t.quicConfig)
	if err != nil {
		t.Logger().Warn("Failed to dial QUIC connection", log.String("addr", addr), log.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrDialFailed, addr, err)
	}

	stream, err := qc.OpenStreamSync(dialCtx)
	if err != nil {
		_ = qc.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("%w: %s: open stream: %w", transport.ErrDialFailed, addr, err)
	}

	return t.Serve(t.framer(qc, stream), attachment, true), nil
}

func (t *Transport) framer(qc *quic.Conn, stream *quic.Stream) transport.Framer {
	return transport.NewStreamFramer(&streamConn{conn: qc, stream: stream}, qc.RemoteAddr().String(), t.Config().MaxPayload)
}

func (t *Transport) Close() error {
	if !t.Shutdown() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}

// streamConn closes the whole QUIC connection along with its only stream.
type streamConn struct {
	conn   *quic.Conn
	stream *quic.Stream
}

func (s *streamConn) Read(p []byte) (int, error) {
	return s.stream.Read(p)
}

func (s *streamConn) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

func (s *streamConn) Close() error {
	s.stream.CancelRead(0)
	_ = s.stream.Close()
	return s.conn.CloseWithError(0, "connection closed")
}
