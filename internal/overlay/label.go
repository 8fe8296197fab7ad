// Package overlay stamps frame information onto viewer images.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bryanchriswhite/cvmmap/internal/protocol"
)

// Label draws a line of text over a translucent box in the top-left corner
type Label struct {
	X, Y       int
	Padding    int
	Opacity    float64 // 0.0 to 1.0
	Color      color.RGBA
	Background color.RGBA
}

// DefaultLabel is white text on a dark box
func DefaultLabel() Label {
	return Label{
		X:          4,
		Y:          4,
		Padding:    4,
		Opacity:    0.8,
		Color:      color.RGBA{255, 255, 255, 255},
		Background: color.RGBA{0, 0, 0, 255},
	}
}

// HeaderText formats a header for the label
func HeaderText(h protocol.FrameHeader) string {
	return fmt.Sprintf("#%d %dx%dx%d %s", h.FrameCount, h.Width, h.Height, h.Channels, h.Depth)
}

// Render draws text onto img
func (l Label) Render(img *image.RGBA, text string) {
	if text == "" {
		return
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	textWidth := d.MeasureString(text).Ceil()
	lineHeight := face.Metrics().Height.Ceil()

	box := image.NewRGBA(image.Rect(0, 0, textWidth+l.Padding*2, lineHeight+l.Padding*2))
	draw.Draw(box, box.Bounds(), image.NewUniform(l.Background), image.Point{}, draw.Src)

	d.Dst = box
	d.Src = image.NewUniform(l.Color)
	d.Dot = fixed.P(l.Padding, l.Padding+face.Metrics().Ascent.Ceil())
	d.DrawString(text)

	opacity := min(max(l.Opacity, 0), 1)
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	dst := box.Bounds().Add(image.Pt(l.X, l.Y))
	draw.DrawMask(img, dst, box, image.Point{}, mask, image.Point{}, draw.Over)
}

// RGBA returns img as an *image.RGBA, copying only when needed
func RGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}
