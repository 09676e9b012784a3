package detector

import (
	"image"
	"log/slog"
	"slices"

	"github.com/MeKo-Tech/ocrlite/internal/scale"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// PostProcessOptions controls region extraction from the probability map.
type PostProcessOptions struct {
	BoxScoreThreshold float64 // minimum mean probability of a region
	UnclipRatio       float64 // expansion factor applied to surviving boxes
	MinSide           float64 // minimum shorter side in map pixels; expanded boxes need MinSide+2
}

// DefaultPostProcessOptions returns score threshold 0.6, unclip ratio 2.0 and
// a minimum side of 3 pixels.
func DefaultPostProcessOptions() PostProcessOptions {
	return PostProcessOptions{BoxScoreThreshold: 0.6, UnclipRatio: 2.0, MinSide: 3}
}

// ExtractRegions turns a probability map and its binarization into scored
// quadrilaterals in source coordinates. Boxes are returned in raster
// discovery order of their contours.
func ExtractRegions(prob ProbabilityMap, bin BinaryMap, sp scale.Param, opts PostProcessOptions) []TextBox {
	contours := FindContours(bin)
	boxes := make([]TextBox, 0, len(contours))

	var small, weak, thin int
	for _, contour := range contours {
		box, minSide, perimeter := GetMinBoxes(utils.ToPoints(contour))
		if minSide < opts.MinSide {
			small++
			continue
		}

		score := BoxScoreFast(prob, contour)
		if score < opts.BoxScoreThreshold {
			weak++
			continue
		}

		grown := Unclip(box, perimeter, opts.UnclipRatio)
		if len(grown) == 0 {
			thin++
			continue
		}
		clipBox, clipMinSide, _ := GetMinBoxes(utils.ToPoints(grown))
		if clipMinSide < opts.MinSide+2 {
			thin++
			continue
		}

		boxes = append(boxes, TextBox{Points: toSource(clipBox, sp), Score: score})
	}
	slices.Reverse(boxes)

	slog.Debug("Extracted text regions",
		"contours", len(contours),
		"regions", len(boxes),
		"too_small", small,
		"low_score", weak,
		"too_thin", thin)
	return boxes
}

// toSource maps detector-space corners back to the source image, truncating
// to whole pixels and clamping to [0, SrcWidth] x [0, SrcHeight].
func toSource(pts [4]image.Point, sp scale.Param) [4]image.Point {
	var out [4]image.Point
	for i, p := range pts {
		x, y := sp.ToSource(float64(p.X), float64(p.Y))
		out[i] = image.Pt(clampInt(int(x), 0, sp.SrcWidth), clampInt(int(y), 0, sp.SrcHeight))
	}
	return out
}
