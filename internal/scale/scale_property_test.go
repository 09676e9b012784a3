package scale

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPlan_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	dims := gen.IntRange(1, 8000)
	target := gen.IntRange(-10, 4000)

	properties.Property("destination dims are multiples of 32 and at least 32", prop.ForAll(
		func(w, h, side int) bool {
			p := Plan(w, h, side)
			return p.DstWidth >= Align && p.DstHeight >= Align &&
				p.DstWidth%Align == 0 && p.DstHeight%Align == 0
		},
		dims, dims, target,
	))

	properties.Property("ratios equal destination over source", prop.ForAll(
		func(w, h, side int) bool {
			p := Plan(w, h, side)
			return p.RatioW == float64(p.DstWidth)/float64(w) &&
				p.RatioH == float64(p.DstHeight)/float64(h)
		},
		dims, dims, target,
	))

	properties.Property("destination never under-covers the scaled size", prop.ForAll(
		func(w, h, side int) bool {
			p := Plan(w, h, side)
			ratio := 1.0
			if m := max(w, h); side > 0 && side < m {
				ratio = float64(side) / float64(m)
			}
			return p.DstWidth >= int(float64(w)*ratio) && p.DstWidth < int(float64(w)*ratio)+Align+Align &&
				p.DstHeight >= int(float64(h)*ratio)
		},
		dims, dims, target,
	))

	properties.Property("mapping destination corners back yields source corners", prop.ForAll(
		func(w, h, side int) bool {
			p := Plan(w, h, side)
			x, y := p.ToSource(float64(p.DstWidth), float64(p.DstHeight))
			return abs(x-float64(w)) < 1e-6 && abs(y-float64(h)) < 1e-6
		},
		dims, dims, target,
	))

	properties.TestingRun(t)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
