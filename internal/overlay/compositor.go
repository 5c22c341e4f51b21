// Package overlay burns quote text onto video frames.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/internal/textwrap"
)

// AuthorPrefix is drawn before the author's name.
const AuthorPrefix = " - "

// Compositor lays out quote text for one frame size.
type Compositor struct {
	faces  *Faces
	width  int
	height int
	fill   color.NRGBA
}

// NewCompositor creates a compositor for width x height frames drawing white
// text at the given transparency (0 invisible, 1 opaque).
func NewCompositor(faces *Faces, width, height int, transparency float64) *Compositor {
	return &Compositor{
		faces:  faces,
		width:  width,
		height: height,
		fill:   color.NRGBA{R: 255, G: 255, B: 255, A: uint8(math.Round(255 * clamp01(transparency)))},
	}
}

// Overlay is a pre-rendered, alpha-blended text layer. It only depends on the
// quote and the frame size, so one Overlay serves every frame of a video.
type Overlay struct {
	layer *image.RGBA
	dirty image.Rectangle
	Lines []string
}

// Render returns a copy of frame with the quote burned in.
func (c *Compositor) Render(frame image.Image, text, author string) *image.RGBA {
	return c.Prepare(text, author).Apply(frame)
}

// Prepare wraps and draws the quote into a transparent layer.
func (c *Compositor) Prepare(text, author string) *Overlay {
	layer := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	src := image.NewUniform(c.fill)

	body := c.faces.Body
	lines := textwrap.Wrap(text, advanceWidth(body), c.width-config.SideMargin)

	authorText := ""
	authorHeight := 0
	if author != "" {
		authorText = AuthorPrefix + author
		_, authorHeight = boxSize(c.faces.Author, authorText)
	}

	total := 0
	for _, line := range lines {
		_, h := boxSize(body, line)
		total += h
	}
	total += len(lines)*config.LineSpacing + authorHeight + config.BlockBuffer

	y := floorHalf(c.height - total - config.BlockBuffer)

	for _, line := range lines {
		w, h := boxSize(body, line)
		drawLine(layer, src, body, line, (c.width-w)/2, y)
		y += h + config.LineSpacing
	}

	if authorText != "" {
		y += config.AuthorGap
		w, _ := boxSize(c.faces.Author, authorText)
		drawLine(layer, src, c.faces.Author, authorText, (c.width-w)/2, y)
	}

	return &Overlay{layer: layer, dirty: inkBounds(layer), Lines: lines}
}

// drawLine draws s with its box's top-left corner at (x, y).
func drawLine(dst *image.RGBA, src image.Image, face font.Face, s string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y) + face.Metrics().Ascent},
	}
	d.DrawString(s)
}

// inkBounds returns the smallest rectangle holding every non-transparent
// pixel of layer.
func inkBounds(layer *image.RGBA) image.Rectangle {
	var r image.Rectangle
	b := layer.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := layer.Pix[layer.PixOffset(b.Min.X, y):layer.PixOffset(b.Max.X-1, y)+4]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4+3] != 0 {
				r = r.Union(image.Rect(b.Min.X+x, y, b.Min.X+x+1, y+1))
			}
		}
	}
	return r
}

// Apply composites the layer over a copy of frame. The frame's own pixels
// are kept as they are outside the glyphs.
func (o *Overlay) Apply(frame image.Image) *image.RGBA {
	b := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Src)
	o.ApplyInPlace(dst)
	return dst
}

// ApplyInPlace composites the layer directly onto dst.
func (o *Overlay) ApplyInPlace(dst *image.RGBA) {
	if o.dirty.Empty() {
		return
	}
	draw.Draw(dst, o.dirty, o.layer, o.dirty.Min, draw.Over)
}

// advanceWidth measures a candidate line by its advance, trailing spaces
// included.
func advanceWidth(face font.Face) textwrap.MeasureFunc {
	return func(s string) int {
		return font.MeasureString(face, s).Ceil()
	}
}

// boxSize returns the width and height of s's box anchored at the ascender
// line: height runs from the top of the ascent to the lowest glyph pixel.
func boxSize(face font.Face, s string) (w, h int) {
	bounds, _ := font.BoundString(face, s)
	w = font.MeasureString(face, s).Ceil()
	h = (face.Metrics().Ascent + bounds.Max.Y).Ceil()
	return w, h
}

func floorHalf(n int) int {
	return int(math.Floor(float64(n) / 2))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
