package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeusync/zeusrpc/pkg/generic"
)

var headerPool = generic.NewBufferPool(HeaderSize, HeaderSize)

// PutHeader encodes the header of p into dst, which must hold HeaderSize bytes.
func PutHeader(dst []byte, p Packet) {
	binary.BigEndian.PutUint32(dst[0:4], uint32(p.Type))
	binary.BigEndian.PutUint64(dst[4:12], p.CorrelationID)
	binary.BigEndian.PutUint32(dst[12:16], uint32(len(p.Payload)))
}

// ParseHeader decodes a header, returning the packet without payload and the
// declared payload length.
func ParseHeader(src []byte) (Packet, uint32, error) {
	if len(src) < HeaderSize {
		return Packet{}, 0, ErrShortHeader
	}
	p := Packet{
		Type:          int32(binary.BigEndian.Uint32(src[0:4])),
		CorrelationID: binary.BigEndian.Uint64(src[4:12]),
	}
	return p, binary.BigEndian.Uint32(src[12:16]), nil
}

// Marshal encodes p into a single contiguous frame.
func Marshal(p Packet) []byte {
	frame := make([]byte, p.Size())
	PutHeader(frame, p)
	copy(frame[HeaderSize:], p.Payload)
	return frame
}

// Unmarshal decodes a complete frame, as delivered by message-oriented
// transports. The payload aliases a copy of frame, not frame itself.
func Unmarshal(frame []byte, maxPayload int) (Packet, error) {
	p, length, err := ParseHeader(frame)
	if err != nil {
		return Packet{}, err
	}
	if maxPayload > 0 && int(length) > maxPayload {
		return Packet{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, length, maxPayload)
	}
	if int(length) != len(frame)-HeaderSize {
		return Packet{}, fmt.Errorf("%w: header %d, frame %d", ErrLengthMismatch, length, len(frame)-HeaderSize)
	}
	p.Payload = append([]byte(nil), frame[HeaderSize:]...)
	return p, nil
}

// Reader decodes packets from a byte stream.
type Reader struct {
	r          *bufio.Reader
	maxPayload int
}

func NewReader(r io.Reader, maxPayload int) *Reader {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Reader{r: bufio.NewReader(r), maxPayload: maxPayload}
}

// ReadPacket blocks until a full packet is read.
func (r *Reader) ReadPacket() (Packet, error) {
	header := headerPool.Get(HeaderSize)
	defer headerPool.Put(header)

	if _, err := io.ReadFull(r.r, header.B); err != nil {
		return Packet{}, err
	}
	p, length, err := ParseHeader(header.B)
	if err != nil {
		return Packet{}, err
	}
	if int(length) > r.maxPayload {
		return Packet{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, length, r.maxPayload)
	}
	p.Payload = make([]byte, length)
	if _, err = io.ReadFull(r.r, p.Payload); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// Writer encodes packets onto a byte stream. It is not safe for concurrent use.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WritePacket buffers p; call Flush to push buffered packets out.
func (w *Writer) WritePacket(p Packet) error {
	header := headerPool.Get(HeaderSize)
	defer headerPool.Put(header)

	PutHeader(header.B, p)
	if _, err := w.w.Write(header.B); err != nil {
		return err
	}
	_, err := w.w.Write(p.Payload)
	return err
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
