package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/wire"
)

var _ Connection = (*Conn)(nil)

// Framer reads and writes whole packets on an underlying channel.
type Framer interface {
	ReadPacket() (wire.Packet, error)
	// WritePacket may buffer; Flush is called once the send queue is drained.
	WritePacket(p wire.Packet) error
	Flush() error
	RemoteAddr() string
	Close() error
}

// Conn is a queued connection: Send never blocks, a writer goroutine drains
// the queue and a reader goroutine delivers events to the handler.
type Conn struct {
	id     string
	base   *Base
	framer Framer
	logger log.Log

	sendQueue chan wire.Packet
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu         sync.RWMutex
	attachment any
}

func newConn(base *Base, framer Framer, attachment any) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:         id,
		base:       base,
		framer:     framer,
		logger:     base.logger.With(log.String("connection_id", id)),
		sendQueue:  make(chan wire.Packet, base.config.SendQueueSize),
		done:       make(chan struct{}),
		attachment: attachment,
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) RemoteAddr() string {
	return c.framer.RemoteAddr()
}

func (c *Conn) Send(code int32, correlationID uint64, payload []byte) int {
	if c.closed.Load() {
		return 0
	}
	p := wire.Packet{Type: code, CorrelationID: correlationID, Payload: payload}
	if len(payload) > c.base.config.MaxPayload {
		c.logger.Warn("Payload exceeds limit, packet rejected",
			log.Int32("type", code),
			log.Int("size", len(payload)))
		c.base.counters.rejected.Add(1)
		return 0
	}

	select {
	case <-c.done:
		return 0
	case c.sendQueue <- p:
		// Close may have raced the push; the write loop no longer drains.
		if c.closed.Load() {
			return 0
		}
		return p.Size()
	default:
		c.base.counters.rejected.Add(1)
		c.logger.Debug("Send queue full", log.Int32("type", code))
		return 0
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.closeErr = c.framer.Close()
	})
	return c.closeErr
}

func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

func (c *Conn) Attach(v any) {
	c.mu.Lock()
	c.attachment = v
	c.mu.Unlock()
}

func (c *Conn) Attachment() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attachment
}

func (c *Conn) start() {
	go c.writeLoop()
	go c.readLoop()
}

func (c *Conn) readLoop() {
	handler := c.base.handler
	defer func() {
		_ = c.Close()
		c.base.forget(c)
		c.logger.Debug("Connection disconnected")
		handler.OnDisconnected(c)
	}()

	handler.OnConnect(c)

	for {
		p, err := c.framer.ReadPacket()
		if err != nil {
			if !c.closed.Load() && !isClosedErr(err) {
				c.logger.Warn("Read failed", log.Error(err))
			}
			return
		}
		c.base.counters.bytesReceived.Add(uint64(p.Size()))
		handler.OnData(c, p)
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case p := <-c.sendQueue:
			if !c.write(p) {
				return
			}
		drain:
			for {
				select {
				case p = <-c.sendQueue:
					if !c.write(p) {
						return
					}
				default:
					break drain
				}
			}
			if err := c.framer.Flush(); err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) write(p wire.Packet) bool {
	if err := c.framer.WritePacket(p); err != nil {
		c.fail(err)
		return false
	}
	c.base.counters.bytesSent.Add(uint64(p.Size()))
	return true
}

func (c *Conn) fail(err error) {
	if !c.closed.Load() && !isClosedErr(err) {
		c.logger.Warn("Write failed", log.Error(err))
	}
	_ = c.Close()
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// StreamFramer frames packets over a byte stream such as a TCP connection or
// a QUIC stream.
type StreamFramer struct {
	rwc    io.ReadWriteCloser
	remote string
	reader *wire.Reader
	writer *wire.Writer
}

func NewStreamFramer(rwc io.ReadWriteCloser, remote string, maxPayload int) *StreamFramer {
	return &StreamFramer{
		rwc:    rwc,
		remote: remote,
		reader: wire.NewReader(rwc, maxPayload),
		writer: wire.NewWriter(rwc),
	}
}

func (f *StreamFramer) ReadPacket() (wire.Packet, error) {
	return f.reader.ReadPacket()
}

func (f *StreamFramer) WritePacket(p wire.Packet) error {
	return f.writer.WritePacket(p)
}

func (f *StreamFramer) Flush() error {
	return f.writer.Flush()
}

func (f *StreamFramer) RemoteAddr() string {
	return f.remote
}

func (f *StreamFramer) Close() error {
	return f.rwc.Close()
}
