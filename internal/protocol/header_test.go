package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Scenario(t *testing.T) {
	b := make([]byte, 0, HeaderSize)
	b = binary.NativeEndian.AppendUint32(b, 1)
	b = binary.NativeEndian.AppendUint16(b, 4)
	b = binary.NativeEndian.AppendUint16(b, 2)
	b = append(b, 3, 0)
	b = binary.NativeEndian.AppendUint32(b, 24)

	h, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, FrameHeader{
		FrameCount: 1,
		Width:      4,
		Height:     2,
		Channels:   3,
		Depth:      DepthU8,
		BufferSize: 24,
	}, h)
	assert.Equal(t, 24, h.Samples())
}

func TestRoundTrip(t *testing.T) {
	headers := []FrameHeader{
		{},
		{FrameCount: 1, Width: 4, Height: 2, Channels: 3, Depth: DepthU8, BufferSize: 24},
		{FrameCount: 0xffffffff, Width: 0xffff, Height: 0xffff, Channels: 0xff, Depth: 0xff, BufferSize: 0xffffffff},
		{FrameCount: 123456, Width: 1920, Height: 1080, Channels: 3, Depth: DepthF32, BufferSize: 1920 * 1080 * 3 * 4},
	}
	for _, h := range headers {
		b := Encode(h)
		require.Len(t, b, HeaderSize)

		got, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
}

func TestDecode_WrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 13, 15, 28} {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(i)
		}

		_, err := Decode(b)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedHeader), "len %d", n)

		var merr *MalformedHeaderError
		require.True(t, errors.As(err, &merr))
		assert.Equal(t, n, merr.Len)
		assert.Equal(t, hex.Dump(b), merr.Dump)
		if n > 1 {
			assert.Contains(t, merr.Dump, "00 01")
		}
	}
}

func TestDecode_TopicFrameIsMalformed(t *testing.T) {
	_, err := Decode([]byte{TopicMagic})
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestEncode_FieldOffsets(t *testing.T) {
	b := Encode(FrameHeader{FrameCount: 7, Width: 640, Height: 480, Channels: 1, Depth: DepthU16, BufferSize: 99})

	assert.Equal(t, uint32(7), binary.NativeEndian.Uint32(b[0:4]))
	assert.Equal(t, uint16(640), binary.NativeEndian.Uint16(b[4:6]))
	assert.Equal(t, uint16(480), binary.NativeEndian.Uint16(b[6:8]))
	assert.Equal(t, byte(1), b[8])
	assert.Equal(t, byte(DepthU16), b[9])
	assert.Equal(t, uint32(99), binary.NativeEndian.Uint32(b[10:14]))
}

func TestDepth(t *testing.T) {
	assert.Equal(t, "CV_8U", DepthU8.String())
	assert.Equal(t, "CV_64F", DepthF64.String())
	assert.Equal(t, "unknown(42)", Depth(42).String())
	assert.Equal(t, 1, DepthU8.ByteWidth())
	assert.Equal(t, 2, DepthF16.ByteWidth())
	assert.Equal(t, 8, DepthF64.ByteWidth())
	assert.False(t, Depth(9).Valid())
}
