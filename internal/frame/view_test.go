package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/cvmmap/internal/protocol"
)

type bytesBuffer []byte

func (b bytesBuffer) Bytes() []byte { return b }

func header(h, w, c int) protocol.FrameHeader {
	return protocol.FrameHeader{
		FrameCount: 1,
		Width:      uint16(w),
		Height:     uint16(h),
		Channels:   uint8(c),
		BufferSize: uint32(h * w * c),
	}
}

func TestBuild_Shape(t *testing.T) {
	buf := make(bytesBuffer, 24)
	v, err := Build(buf, header(2, 4, 3))
	require.NoError(t, err)

	h, w, c := v.Shape()
	assert.Equal(t, []int{2, 4, 3}, []int{h, w, c})
	assert.Equal(t, 24, v.Len())
	assert.Equal(t, protocol.DepthU8, v.Depth())
}

func TestBuild_TooSmall(t *testing.T) {
	_, err := Build(make(bytesBuffer, 23), header(2, 4, 3))
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestBuild_IgnoresDeclaredBufferSize(t *testing.T) {
	h := header(2, 4, 3)
	h.BufferSize = 10

	v, err := Build(make(bytesBuffer, 24), h)
	require.NoError(t, err)
	assert.Equal(t, 24, v.Len())
}

func TestBuild_LargerSegment(t *testing.T) {
	v, err := Build(make(bytesBuffer, 100), header(2, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, 24, v.Len())
}

func TestView_Aliasing(t *testing.T) {
	buf := make(bytesBuffer, 24)
	v, err := Build(buf, header(2, 4, 3))
	require.NoError(t, err)

	snapshot := v.Copy()

	// row 1, col 2, channel 1
	buf[(1*4+2)*3+1] = 0x42

	assert.Equal(t, byte(0x42), v.At(1, 2, 1))
	assert.Equal(t, []byte{0, 0x42, 0}, v.Pixel(1, 2))
	assert.Equal(t, byte(0x42), v.Row(1)[2*3+1])
	assert.Equal(t, byte(0), snapshot[(1*4+2)*3+1])
}

func TestView_OutOfRange(t *testing.T) {
	v, err := Build(make(bytesBuffer, 24), header(2, 4, 3))
	require.NoError(t, err)
	assert.Panics(t, func() { v.At(2, 0, 0) })
	assert.Panics(t, func() { v.Pixel(0, 4) })
}

func TestView_ImageBGR(t *testing.T) {
	buf := make(bytesBuffer, 6)
	copy(buf, []byte{1, 2, 3, 4, 5, 6})

	v, err := Build(buf, header(1, 2, 3))
	require.NoError(t, err)

	img, err := v.Image()
	require.NoError(t, err)
	rgba, ok := img.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 3, G: 2, B: 1, A: 0xff}, rgba.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 6, G: 5, B: 4, A: 0xff}, rgba.RGBAAt(1, 0))
}

func TestView_ImageBGRA(t *testing.T) {
	buf := bytesBuffer{10, 20, 30, 40}
	v, err := Build(buf, header(1, 1, 4))
	require.NoError(t, err)

	img, err := v.Image()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 40}, img.(*image.RGBA).RGBAAt(0, 0))
}

func TestView_ImageGray(t *testing.T) {
	buf := bytesBuffer{7, 8, 9, 10}
	v, err := Build(buf, header(2, 2, 1))
	require.NoError(t, err)

	img, err := v.Image()
	require.NoError(t, err)
	gray := img.(*image.Gray)
	assert.Equal(t, uint8(10), gray.GrayAt(1, 1).Y)
	assert.Equal(t, image.Rect(0, 0, 2, 2), gray.Bounds())
}

func TestView_ImageUnsupported(t *testing.T) {
	v, err := Build(make(bytesBuffer, 4), header(1, 2, 2))
	require.NoError(t, err)
	_, err = v.Image()
	assert.ErrorIs(t, err, ErrUnsupportedChannels)
}
