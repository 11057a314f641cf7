// Package annotate draws recognition results onto images: a rectangle around
// each face and a text label above it.
package annotate

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Red is the default box and label color.
var Red = color.RGBA{R: 255, A: 255}

// Style controls how boxes and labels are drawn.
type Style struct {
	Color color.Color
	// MinThickness is the thinnest box stroke, in pixels.
	MinThickness int
	// LabelOffset is the gap between the label baseline and the box top.
	LabelOffset int
	Face        font.Face
}

// DefaultStyle returns a red style with a 3px minimum stroke.
func DefaultStyle() Style {
	return Style{
		Color:        Red,
		MinThickness: 3,
		LabelOffset:  10,
		Face:         basicfont.Face7x13,
	}
}

// Geometry is the stroke and text size used for one image.
type Geometry struct {
	FontScale float64
	Thickness int
}

// GeometryFor scales strokes and text with the image: the font scale is
// min(width, height)/600 and the stroke is the larger of the style minimum
// and the integer part of the font scale.
func (s Style) GeometryFor(bounds image.Rectangle) Geometry {
	scale := float64(min(bounds.Dx(), bounds.Dy())) / (20 * 30)
	return Geometry{
		FontScale: scale,
		Thickness: max(s.MinThickness, int(scale)),
	}
}

// Clone returns an RGBA copy of img with the same bounds.
func Clone(img image.Image) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// Box strokes the outline of rect on dst, inside the rectangle.
func Box(dst draw.Image, rect image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness),
		image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y),
		image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(rect).Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// Label draws text with its bottom-left corner at origin, enlarged by an
// integer factor derived from fontScale.
func Label(dst draw.Image, text string, origin image.Point, fontScale float64, face font.Face, c color.Color) {
	if text == "" {
		return
	}
	if face == nil {
		face = basicfont.Face7x13
	}

	metrics := face.Metrics()
	ascent, descent := metrics.Ascent.Ceil(), metrics.Descent.Ceil()
	width := font.MeasureString(face, text).Ceil()

	glyphs := image.NewNRGBA(image.Rect(0, 0, width, ascent+descent))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(text)

	var scaled image.Image = glyphs
	if factor := max(1, int(fontScale*2+0.5)); factor > 1 {
		scaled = imaging.Resize(glyphs, width*factor, (ascent+descent)*factor, imaging.NearestNeighbor)
	}

	size := scaled.Bounds().Size()
	at := image.Rect(origin.X, origin.Y-size.Y, origin.X+size.X, origin.Y)
	draw.Draw(dst, at, scaled, scaled.Bounds().Min, draw.Over)
}

// Annotation is one box with its label.
type Annotation struct {
	Rect  image.Rectangle
	Label string
}

// Draw returns a copy of img with every annotation drawn using s.
// img itself is not modified.
func (s Style) Draw(img image.Image, annotations []Annotation) *image.RGBA {
	out := Clone(img)
	g := s.GeometryFor(out.Bounds())
	for _, a := range annotations {
		Box(out, a.Rect, s.Color, g.Thickness)
		Label(out, a.Label, image.Pt(a.Rect.Min.X, a.Rect.Min.Y-s.LabelOffset), g.FontScale, s.Face, s.Color)
	}
	return out
}
