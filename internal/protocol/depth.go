package protocol

import "fmt"

// Depth is the OpenCV pixel depth tag carried in a header.
type Depth uint8

const (
	DepthU8  Depth = 0 // CV_8U
	DepthS8  Depth = 1 // CV_8S
	DepthU16 Depth = 2 // CV_16U
	DepthS16 Depth = 3 // CV_16S
	DepthS32 Depth = 4 // CV_32S
	DepthF32 Depth = 5 // CV_32F
	DepthF64 Depth = 6 // CV_64F
	DepthF16 Depth = 7 // CV_16F
)

func (d Depth) String() string {
	switch d {
	case DepthU8:
		return "CV_8U"
	case DepthS8:
		return "CV_8S"
	case DepthU16:
		return "CV_16U"
	case DepthS16:
		return "CV_16S"
	case DepthS32:
		return "CV_32S"
	case DepthF32:
		return "CV_32F"
	case DepthF64:
		return "CV_64F"
	case DepthF16:
		return "CV_16F"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// ByteWidth returns the size of one sample in bytes, or 0 for unknown tags.
func (d Depth) ByteWidth() int {
	switch d {
	case DepthU8, DepthS8:
		return 1
	case DepthU16, DepthS16, DepthF16:
		return 2
	case DepthS32, DepthF32:
		return 4
	case DepthF64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether d is a known tag.
func (d Depth) Valid() bool {
	return d.ByteWidth() != 0
}
