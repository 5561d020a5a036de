package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/wire"
)

type recordingHandler struct {
	mu           sync.Mutex
	connects     []any
	packets      []wire.Packet
	disconnects  int
	echo         bool
	received     chan wire.Packet
	disconnected chan struct{}
}

func newRecordingHandler(echo bool) *recordingHandler {
	return &recordingHandler{
		echo:         echo,
		received:     make(chan wire.Packet, 16),
		disconnected: make(chan struct{}, 4),
	}
}

func (h *recordingHandler) OnConnect(c Connection) {
	h.mu.Lock()
	h.connects = append(h.connects, c.Attachment())
	h.mu.Unlock()
}

func (h *recordingHandler) OnData(c Connection, p wire.Packet) {
	h.mu.Lock()
	h.packets = append(h.packets, p)
	h.mu.Unlock()
	if h.echo {
		c.Send(p.Type, p.CorrelationID, p.Payload)
	}
	h.received <- p
}

func (h *recordingHandler) OnDisconnected(Connection) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
	h.disconnected <- struct{}{}
}

func (h *recordingHandler) disconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects
}

func waitPacket(t *testing.T, ch <-chan wire.Packet) wire.Packet {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
		return wire.Packet{}
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestTCPTransport_RoundTrip(t *testing.T) {
	logger := log.NewNop()
	serverHandler := newRecordingHandler(true)
	server := NewTCPTransport(serverHandler, DefaultConfig(), logger)
	require.NoError(t, server.Listen(context.Background(), "127.0.0.1:0"))
	defer func() { _ = server.Close() }()
	require.NotEmpty(t, server.Addr())

	clientHandler := newRecordingHandler(false)
	client := NewTCPTransport(clientHandler, DefaultConfig(), logger)
	defer func() { _ = client.Close() }()

	conn, err := client.Dial(context.Background(), server.Addr(), "binding")
	require.NoError(t, err)
	assert.Equal(t, "binding", conn.Attachment())

	n := conn.Send(100, 77, []byte("payload"))
	assert.Equal(t, wire.HeaderSize+len("payload"), n)

	got := waitPacket(t, serverHandler.received)
	assert.Equal(t, int32(100), got.Type)
	assert.Equal(t, uint64(77), got.CorrelationID)

	echoed := waitPacket(t, clientHandler.received)
	assert.Equal(t, []byte("payload"), echoed.Payload)

	clientHandler.mu.Lock()
	assert.Equal(t, []any{"binding"}, clientHandler.connects)
	clientHandler.mu.Unlock()

	require.NoError(t, conn.Close())
	waitSignal(t, clientHandler.disconnected)
	waitSignal(t, serverHandler.disconnected)

	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0, conn.Send(100, 78, nil))
	assert.Equal(t, 1, clientHandler.disconnectCount())

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.ConnectionsDialed)
	assert.Equal(t, uint64(1), server.Stats().ConnectionsAccepted)
}

func TestTCPTransport_DialFailure(t *testing.T) {
	client := NewTCPTransport(newRecordingHandler(false), Config{DialTimeout: 200 * time.Millisecond}, log.NewNop())
	defer func() { _ = client.Close() }()

	_, err := client.Dial(context.Background(), "127.0.0.1:1", nil)
	assert.ErrorIs(t, err, ErrDialFailed)
}

func TestTCPTransport_ClosedTransport(t *testing.T) {
	tr := NewTCPTransport(newRecordingHandler(false), DefaultConfig(), log.NewNop())
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Dial(context.Background(), "127.0.0.1:1", nil)
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.ErrorIs(t, tr.Listen(context.Background(), "127.0.0.1:0"), ErrTransportClosed)
}

// blockingFramer never completes a write until released.
type blockingFramer struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newBlockingFramer() *blockingFramer {
	return &blockingFramer{release: make(chan struct{}), closed: make(chan struct{})}
}

func (f *blockingFramer) ReadPacket() (wire.Packet, error) {
	<-f.closed
	return wire.Packet{}, io.EOF
}

func (f *blockingFramer) WritePacket(wire.Packet) error {
	select {
	case <-f.release:
		return nil
	case <-f.closed:
		return errors.New("closed")
	}
}

func (f *blockingFramer) Flush() error      { return nil }
func (f *blockingFramer) RemoteAddr() string { return "fake" }

func (f *blockingFramer) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestConn_SendReportsBackpressure(t *testing.T) {
	handler := newRecordingHandler(false)
	base := NewBase("fake", handler, Config{SendQueueSize: 1}, log.NewNop())
	conn := base.Serve(newBlockingFramer(), nil, true)
	defer func() { _ = conn.Close() }()

	rejected := false
	for i := 0; i < 3; i++ {
		if conn.Send(100, uint64(i), []byte("x")) == 0 {
			rejected = true
			break
		}
	}
	assert.True(t, rejected, "a full send queue must report zero bytes")
	assert.GreaterOrEqual(t, base.Stats().SendsRejected, uint64(1))
}

func TestConn_SendRacingCloseReportsZero(t *testing.T) {
	handler := newRecordingHandler(false)
	base := NewBase("fake", handler, Config{SendQueueSize: 4096}, log.NewNop())

	for i := 0; i < 50; i++ {
		conn := base.Serve(newBlockingFramer(), nil, true)

		var closed atomic.Bool
		go func() {
			_ = conn.Close()
			closed.Store(true)
		}()

		for sent := 0; sent < 4000; sent++ {
			after := closed.Load()
			n := conn.Send(100, uint64(sent), []byte("x"))
			if after {
				require.Zero(t, n, "send after close must report zero bytes")
				break
			}
		}
		require.Eventually(t, closed.Load, time.Second, time.Millisecond)
		assert.Zero(t, conn.Send(100, 0, []byte("x")))
	}
}

func TestConn_RejectsOversizedPayload(t *testing.T) {
	handler := newRecordingHandler(false)
	base := NewBase("fake", handler, Config{MaxPayload: 4}, log.NewNop())
	conn := base.Serve(newBlockingFramer(), nil, true)
	defer func() { _ = conn.Close() }()

	assert.Equal(t, 0, conn.Send(100, 1, []byte("too long")))
}

func TestBase_ShutdownClosesConnections(t *testing.T) {
	handler := newRecordingHandler(false)
	base := NewBase("fake", handler, DefaultConfig(), log.NewNop())
	conn := base.Serve(newBlockingFramer(), nil, false)

	assert.True(t, base.Shutdown())
	assert.False(t, base.Shutdown())
	waitSignal(t, handler.disconnected)
	assert.True(t, conn.IsClosed())
	assert.Equal(t, uint64(0), base.Stats().ConnectionsActive)
}
