package detector

import (
	"image"

	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// Unclip expands box outward by ratio * area / perimeter with round joins.
// The expanded outline is returned in whole pixels; a non-positive perimeter
// yields nil.
func Unclip(box [4]image.Point, perimeter, ratio float64) []image.Point {
	if perimeter <= 0 {
		return nil
	}
	pts := utils.ToPoints(box[:])
	distance := ratio * utils.PolygonArea(pts) / perimeter

	grown := utils.OffsetPolygon(pts, distance)
	out := make([]image.Point, len(grown))
	for i, p := range grown {
		out[i] = p.Round()
	}
	return out
}
