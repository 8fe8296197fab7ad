// Package protocol implements the fixed-size binary notification that announces
// a new frame in the shared-memory segment.
package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// HeaderSize is the exact wire length of a notification.
const HeaderSize = 14

// TopicMagic is the one-byte topic frame the producer publishes ahead of each header.
const TopicMagic byte = 0x7d

// ErrMalformedHeader is matched by every decode failure.
var ErrMalformedHeader = errors.New("malformed header")

// FrameHeader describes one frame written to the shared segment.
type FrameHeader struct {
	FrameCount uint32 `json:"frame_count"`
	Width      uint16 `json:"width"`
	Height     uint16 `json:"height"`
	Channels   uint8  `json:"channels"`
	Depth      Depth  `json:"depth"`
	BufferSize uint32 `json:"buffer_size"`
}

// Samples returns height*width*channels, the number of one-byte samples the
// header addresses.
func (h FrameHeader) Samples() int {
	return int(h.Height) * int(h.Width) * int(h.Channels)
}

// SameShape reports whether both headers describe the same (height, width, channels).
func (h FrameHeader) SameShape(o FrameHeader) bool {
	return h.Width == o.Width && h.Height == o.Height && h.Channels == o.Channels
}

func (h FrameHeader) String() string {
	return fmt.Sprintf("frame@%d %dx%dx%d depth=%s buffer=%d",
		h.FrameCount, h.Width, h.Height, h.Channels, h.Depth, h.BufferSize)
}

// MalformedHeaderError carries the offending length and a hex dump of the bytes.
type MalformedHeaderError struct {
	Len  int
	Dump string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed header: got %d bytes, want %d", e.Len, HeaderSize)
}

// Is makes errors.Is(err, ErrMalformedHeader) hold.
func (e *MalformedHeaderError) Is(target error) bool {
	return target == ErrMalformedHeader
}

// Decode parses a notification. Anything other than exactly HeaderSize bytes
// fails with a *MalformedHeaderError and no fields are decoded.
func Decode(b []byte) (FrameHeader, error) {
	if len(b) != HeaderSize {
		return FrameHeader{}, &MalformedHeaderError{Len: len(b), Dump: hex.Dump(b)}
	}

	order := binary.NativeEndian
	return FrameHeader{
		FrameCount: order.Uint32(b[0:4]),
		Width:      order.Uint16(b[4:6]),
		Height:     order.Uint16(b[6:8]),
		Channels:   b[8],
		Depth:      Depth(b[9]),
		BufferSize: order.Uint32(b[10:14]),
	}, nil
}

// Encode is the inverse of Decode and always returns HeaderSize bytes.
func Encode(h FrameHeader) []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// AppendTo appends the wire form of h to b.
func (h FrameHeader) AppendTo(b []byte) []byte {
	order := binary.NativeEndian
	b = order.AppendUint32(b, h.FrameCount)
	b = order.AppendUint16(b, h.Width)
	b = order.AppendUint16(b, h.Height)
	b = append(b, h.Channels, byte(h.Depth))
	return order.AppendUint32(b, h.BufferSize)
}
