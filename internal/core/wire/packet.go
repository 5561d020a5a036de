// Package wire defines the packet exchanged between runtime peers and its
// framing: a fixed 16-byte big-endian header (type, correlation id, payload
// length) followed by the payload bytes.
package wire

import (
	"errors"
	"fmt"
)

// HeaderSize is the encoded size of a packet header.
const HeaderSize = 16

// Reserved control codes. Every other value is an application method code.
const (
	CodePing int32 = 1
	CodePong int32 = 2
)

// DefaultMaxPayload bounds a single packet payload.
const DefaultMaxPayload = 16 << 20

var (
	ErrShortHeader     = errors.New("wire: short packet header")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	ErrLengthMismatch  = errors.New("wire: payload length mismatch")
)

// Packet is one framed unit on a connection.
type Packet struct {
	Type          int32
	CorrelationID uint64
	Payload       []byte
}

// IsControl reports whether the packet carries a liveness code.
func (p Packet) IsControl() bool {
	return IsControl(p.Type)
}

// Size is the number of bytes the packet occupies on the wire.
func (p Packet) Size() int {
	return HeaderSize + len(p.Payload)
}

func (p Packet) String() string {
	return fmt.Sprintf("packet{type=%d id=%d len=%d}", p.Type, p.CorrelationID, len(p.Payload))
}

func IsControl(code int32) bool {
	return code == CodePing || code == CodePong
}
