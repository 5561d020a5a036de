// Package transport moves wire packets between peers. A Transport accepts and
// dials connections; every connection reports its lifecycle and inbound
// packets to a single Handler and exposes a non-blocking Send.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/zeusync/zeusrpc/internal/core/wire"
)

var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrDialFailed      = errors.New("dial failed")
	ErrListenFailed    = errors.New("listen failed")
)

// Connection is one physical connection to a peer.
type Connection interface {
	ID() string
	RemoteAddr() string

	// Send queues a packet and returns the number of bytes that will be
	// written: wire.HeaderSize+len(payload) on success, 0 when the packet
	// could not be queued (send queue full or connection closed).
	Send(code int32, correlationID uint64, payload []byte) int

	Close() error
	IsClosed() bool

	// Attach associates caller metadata with the connection. The transport
	// never interprets it.
	Attach(v any)
	Attachment() any
}

// Handler receives connection events. For a given connection OnConnect is
// delivered once before any OnData, OnData is delivered in arrival order from
// one goroutine, and OnDisconnected is delivered once after the last OnData.
type Handler interface {
	OnConnect(c Connection)
	OnData(c Connection, p wire.Packet)
	OnDisconnected(c Connection)
}

// Transport accepts and opens connections.
type Transport interface {
	Listen(ctx context.Context, addr string) error
	// Addr is the bound listen address, empty before Listen.
	Addr() string
	// Dial opens a connection. The attachment is in place before any event
	// for the connection reaches the Handler.
	Dial(ctx context.Context, addr string, attachment any) (Connection, error)
	Stats() Stats
	Close() error
}

// Factory builds a transport delivering events to handler.
type Factory func(handler Handler) Transport

// Config holds settings shared by all transport implementations.
type Config struct {
	DialTimeout   time.Duration
	SendQueueSize int
	MaxPayload    int
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:   5 * time.Second,
		SendQueueSize: 256,
		MaxPayload:    wire.DefaultMaxPayload,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = def.MaxPayload
	}
	return c
}
