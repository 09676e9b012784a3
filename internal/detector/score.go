package detector

import (
	"image"

	"github.com/MeKo-Tech/ocrlite/internal/mempool"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// BoxScoreFast returns the mean probability over the pixels covered by the
// polygon, boundary included. The polygon's bounding box is clamped to the
// map. The result lies in [0, 1] for a valid probability map.
func BoxScoreFast(prob ProbabilityMap, poly []image.Point) float64 {
	if len(poly) == 0 || prob.Width <= 0 || prob.Height <= 0 {
		return 0
	}
	r := utils.BoundingRect(poly)
	minX := clampInt(r.Min.X, 0, prob.Width-1)
	minY := clampInt(r.Min.Y, 0, prob.Height-1)
	maxX := clampInt(r.Max.X, 0, prob.Width-1)
	maxY := clampInt(r.Max.Y, 0, prob.Height-1)

	mw, mh := maxX-minX+1, maxY-minY+1
	mask := mempool.GetBool(mw * mh)
	defer mempool.PutBool(mask)

	local := make([]image.Point, len(poly))
	origin := image.Pt(minX, minY)
	for i, p := range poly {
		local[i] = p.Sub(origin)
	}
	utils.FillPolygon(mask, mw, mh, local)

	var sum float64
	var n int
	for y := range mh {
		row := prob.Data[(minY+y)*prob.Width+minX:]
		for x := range mw {
			if mask[y*mw+x] {
				sum += float64(row[x])
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clampInt(v, lo, hi int) int { return min(max(v, lo), hi) }
