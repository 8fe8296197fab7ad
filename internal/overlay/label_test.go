package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanchriswhite/cvmmap/internal/protocol"
)

func TestHeaderText(t *testing.T) {
	h := protocol.FrameHeader{FrameCount: 12, Width: 640, Height: 480, Channels: 3}
	assert.Equal(t, "#12 640x480x3 CV_8U", HeaderText(h))
}

func TestLabel_Render(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 40))
	white := color.RGBA{255, 255, 255, 255}
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	l := DefaultLabel()
	l.Opacity = 1
	l.Render(img, "#1")

	// Box corner takes the background color, far corner is untouched
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(l.X, l.Y))
	assert.Equal(t, white, img.RGBAAt(199, 39))
}

func TestLabel_RenderEmpty(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	DefaultLabel().Render(img, "")
	assert.Equal(t, color.RGBA{}, img.RGBAAt(5, 5))
}

func TestRGBA(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	assert.Same(t, rgba, RGBA(rgba))

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 200})
	out := RGBA(gray)
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, out.RGBAAt(1, 1))
}
