// Package rectify cuts detected text regions out of an image and warps each
// one into an upright axis-aligned strip.
package rectify

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// ErrDegenerateRegion is returned for quadrilaterals that cannot be warped.
var ErrDegenerateRegion = errors.New("degenerate text region")

// RotateRatio is the height to width ratio at which a strip is treated as
// vertical text and turned 90 degrees clockwise.
const RotateRatio = 1.5

// Rectify crops the bounding box of pts from src and warps the quadrilateral
// (top-left, top-right, bottom-right, bottom-left) onto a rectangle whose
// width is |p0-p1| and height |p0-p3|, truncated to whole pixels.
func Rectify(src image.Image, pts [4]image.Point) (*image.NRGBA, error) {
	if src == nil {
		return nil, errors.New("input image is nil")
	}

	origin := src.Bounds().Min
	bbox := utils.BoundingRect(pts[:]).Add(origin).Intersect(src.Bounds())
	crop := utils.Crop(src, bbox)
	if crop == nil {
		return nil, fmt.Errorf("%w: empty crop for %v", ErrDegenerateRegion, pts)
	}

	// corners relative to the crop
	var local [4]image.Point
	for i, p := range pts {
		local[i] = p.Add(origin).Sub(bbox.Min)
	}
	q := quadFrom(local)
	w := int(utils.Distance(q[0], q[1]))
	h := int(utils.Distance(q[0], q[3]))
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: %dx%d strip for %v", ErrDegenerateRegion, w, h, pts)
	}

	dst := [4]utils.Point{{X: 0, Y: 0}, {X: float64(w), Y: 0}, {X: float64(w), Y: float64(h)}, {X: 0, Y: float64(h)}}
	hm, ok := computeHomography(dst, q)
	if !ok {
		return nil, fmt.Errorf("%w: singular transform for %v", ErrDegenerateRegion, pts)
	}

	out := warpPerspective(crop, hm, w, h)
	if float64(h) >= RotateRatio*float64(w) {
		out = utils.Rotate90CW(out)
	}
	return out, nil
}
