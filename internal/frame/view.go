// Package frame builds zero-copy pixel views over an attached segment.
package frame

import (
	"errors"
	"fmt"
	"image"

	"github.com/bryanchriswhite/cvmmap/internal/protocol"
)

var (
	ErrBufferTooSmall      = errors.New("buffer too small for frame shape")
	ErrUnsupportedChannels = errors.New("unsupported channel count")
)

// Buffer is the attached memory a View reads from.
type Buffer interface {
	Bytes() []byte
}

// View is a (height, width, channels) array of one-byte samples over shared
// memory. It never copies: the producer may overwrite the bytes at any time.
type View struct {
	height   int
	width    int
	channels int
	depth    protocol.Depth
	data     []byte
}

// Build returns a view shaped by the header over buf's bytes. The view covers
// exactly height*width*channels bytes; BufferSize in the header plays no part.
func Build(buf Buffer, h protocol.FrameHeader) (*View, error) {
	data := buf.Bytes()
	n := h.Samples()
	if n > len(data) {
		return nil, fmt.Errorf("%w: shape (%d,%d,%d) needs %d bytes, segment has %d",
			ErrBufferTooSmall, h.Height, h.Width, h.Channels, n, len(data))
	}
	return &View{
		height:   int(h.Height),
		width:    int(h.Width),
		channels: int(h.Channels),
		depth:    h.Depth,
		data:     data[:n:n],
	}, nil
}

// Shape returns (height, width, channels).
func (v *View) Shape() (height, width, channels int) {
	return v.height, v.width, v.channels
}

// Depth is the tag from the header the view was built with. Samples are
// always read as single bytes regardless of it.
func (v *View) Depth() protocol.Depth {
	return v.depth
}

// Len is the number of addressable bytes.
func (v *View) Len() int {
	return len(v.data)
}

// Bytes returns the underlying shared memory, row-major (y, x, c).
func (v *View) Bytes() []byte {
	return v.data
}

// At returns the sample at row y, column x, channel c.
func (v *View) At(y, x, c int) byte {
	return v.data[v.offset(y, x)+c]
}

// Pixel returns the channels of one pixel, aliasing shared memory.
func (v *View) Pixel(y, x int) []byte {
	off := v.offset(y, x)
	return v.data[off : off+v.channels : off+v.channels]
}

// Row returns one row of width*channels samples, aliasing shared memory.
func (v *View) Row(y int) []byte {
	stride := v.width * v.channels
	return v.data[y*stride : (y+1)*stride : (y+1)*stride]
}

func (v *View) offset(y, x int) int {
	if y < 0 || y >= v.height || x < 0 || x >= v.width {
		panic(fmt.Sprintf("frame: index (%d,%d) out of range (%d,%d)", y, x, v.height, v.width))
	}
	return (y*v.width + x) * v.channels
}

// Copy snapshots the current bytes so they survive the next producer write.
func (v *View) Copy() []byte {
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out
}

// Image converts a snapshot of the view into an image. One channel becomes
// gray; three (BGR) and four (BGRA) channels become RGBA.
func (v *View) Image() (image.Image, error) {
	rect := image.Rect(0, 0, v.width, v.height)

	switch v.channels {
	case 1:
		img := image.NewGray(rect)
		for y := 0; y < v.height; y++ {
			copy(img.Pix[y*img.Stride:], v.Row(y))
		}
		return img, nil
	case 3, 4:
		img := image.NewRGBA(rect)
		for y := 0; y < v.height; y++ {
			src := v.Row(y)
			dst := img.Pix[y*img.Stride : y*img.Stride+v.width*4]
			for x := 0; x < v.width; x++ {
				s := src[x*v.channels:]
				d := dst[x*4:]
				d[0], d[1], d[2] = s[2], s[1], s[0]
				if v.channels == 4 {
					d[3] = s[3]
				} else {
					d[3] = 0xff
				}
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, v.channels)
	}
}
