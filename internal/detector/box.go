package detector

import (
	"cmp"
	"fmt"
	"image"
	"slices"

	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// TextBox is a detected text region. Points wind top-left, top-right,
// bottom-right, bottom-left in source image coordinates; Score is the mean
// probability under the region's contour.
type TextBox struct {
	Points [4]image.Point `json:"points"`
	Score  float64        `json:"score"`
}

// Translate returns the box shifted by (dx, dy).
func (b TextBox) Translate(dx, dy int) TextBox {
	d := image.Pt(dx, dy)
	for i := range b.Points {
		b.Points[i] = b.Points[i].Add(d)
	}
	return b
}

// Bounds returns the axis-aligned rectangle spanned by the points, with Max
// being the largest coordinate.
func (b TextBox) Bounds() image.Rectangle { return utils.BoundingRect(b.Points[:]) }

// Polygon returns the points as a slice.
func (b TextBox) Polygon() []image.Point { return b.Points[:] }

func (b TextBox) String() string {
	return fmt.Sprintf("%v score=%.3f", b.Points, b.Score)
}

// GetMinBoxes fits the minimum-area rectangle to pts and returns its corners
// rounded to pixels in canonical order, together with the rectangle's shorter
// side and perimeter.
func GetMinBoxes(pts []utils.Point) ([4]image.Point, float64, float64) {
	r := utils.MinAreaRect(pts)
	var corners [4]image.Point
	for i, c := range r.Corners {
		corners[i] = c.Round()
	}
	return OrderCorners(corners), r.MinSide(), r.Perimeter()
}

// OrderCorners sorts four corners by x; the two leftmost form the left pair
// and the two rightmost the right pair, and within each pair the smaller y is
// the top. The result is top-left, top-right, bottom-right, bottom-left.
func OrderCorners(c [4]image.Point) [4]image.Point {
	s := c
	slices.SortStableFunc(s[:], func(a, b image.Point) int { return cmp.Compare(a.X, b.X) })

	lt, lb := 0, 1
	if s[0].Y > s[1].Y {
		lt, lb = 1, 0
	}
	rt, rb := 2, 3
	if s[2].Y > s[3].Y {
		rt, rb = 3, 2
	}
	return [4]image.Point{s[lt], s[rt], s[rb], s[lb]}
}
