package utils

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Point represents a 2D coordinate in float space.
type Point struct {
	X float64
	Y float64
}

// Pt converts an integer point to a Point.
func Pt(p image.Point) Point { return Point{X: float64(p.X), Y: float64(p.Y)} }

// Round converts the point to the nearest integer pixel.
func (p Point) Round() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// ToPoints converts integer points to float points.
func ToPoints(pts []image.Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Pt(p)
	}
	return out
}

// BoundingRect returns the smallest rectangle [min, max) spanning pts, where
// max is the largest coordinate itself (not +1). Empty input yields the zero rectangle.
func BoundingRect(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	return r
}

// Crop returns a copy of rect of img. The rectangle is intersected with the
// image bounds; an empty intersection returns nil.
func Crop(img image.Image, rect image.Rectangle) *image.NRGBA {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil
	}
	return imaging.Crop(img, rect)
}

// Clone returns a copy of img anchored at the origin.
func Clone(img image.Image) *image.NRGBA { return imaging.Clone(img) }

// Rotate90CW rotates the image 90 degrees clockwise.
func Rotate90CW(img image.Image) *image.NRGBA { return imaging.Rotate270(img) }

// Rotate180 rotates the image 180 degrees.
func Rotate180(img image.Image) *image.NRGBA { return imaging.Rotate180(img) }

// LineThickness returns the annotation stroke width for an image of size w x h.
func LineThickness(w, h int) int { return min(w, h)/1000 + 2 }

// DrawQuad draws the closed polygon through pts into dst.
func DrawQuad(dst *image.NRGBA, pts []image.Point, col color.Color, thickness int) {
	if len(pts) < 2 {
		return
	}
	c := color.NRGBAModel.Convert(col).(color.NRGBA) //nolint:forcetypeassert // NRGBAModel always returns NRGBA
	for i := range pts {
		line(pts[i], pts[(i+1)%len(pts)], func(x, y int) { stamp(dst, x, y, c, thickness) })
	}
}

func stamp(dst *image.NRGBA, x, y int, col color.NRGBA, thickness int) {
	r := max(thickness, 1) / 2
	bounds := dst.Bounds()
	for yy := y - r; yy <= y+r; yy++ {
		for xx := x - r; xx <= x+r; xx++ {
			if image.Pt(xx, yy).In(bounds) {
				dst.SetNRGBA(xx, yy, col)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
