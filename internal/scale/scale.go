// Package scale plans how an input image is resized for the detection network.
//
// The detector accepts only dimensions that are multiples of 32. A Param
// records both the source and destination sizes together with the ratios
// actually applied, so detector-space coordinates can be mapped back exactly.
package scale

import "fmt"

// Align is the granularity the detection network requires for its input.
const Align = 32

// Param describes a resize from source to destination dimensions.
type Param struct {
	SrcWidth  int
	SrcHeight int
	DstWidth  int
	DstHeight int
	RatioW    float64 // DstWidth / SrcWidth
	RatioH    float64 // DstHeight / SrcHeight
}

// Plan computes the resize for an image of srcWidth x srcHeight so that its
// longer side is at most targetMaxSide before alignment. targetMaxSide <= 0
// disables shrinking. Images are never enlarged beyond alignment.
func Plan(srcWidth, srcHeight, targetMaxSide int) Param {
	srcWidth = max(srcWidth, 1)
	srcHeight = max(srcHeight, 1)
	maxSide := max(srcWidth, srcHeight)

	ratio := 1.0
	if targetMaxSide > 0 && targetMaxSide < maxSide {
		ratio = float64(targetMaxSide) / float64(maxSide)
	}

	dstW := roundUp(float64(srcWidth) * ratio)
	dstH := roundUp(float64(srcHeight) * ratio)

	return Param{
		SrcWidth:  srcWidth,
		SrcHeight: srcHeight,
		DstWidth:  dstW,
		DstHeight: dstH,
		RatioW:    float64(dstW) / float64(srcWidth),
		RatioH:    float64(dstH) / float64(srcHeight),
	}
}

// roundUp truncates v and rounds it up to the next multiple of Align, never
// below Align.
func roundUp(v float64) int {
	n := int(v)
	if r := n % Align; r != 0 {
		n += Align - r
	}
	return max(n, Align)
}

// TargetSide returns the target passed to Plan for an unpadded image of
// w x h: the longer side, capped at maxSideLen when that is positive, plus the
// padding added on both sides.
func TargetSide(w, h, maxSideLen, padding int) int {
	side := max(w, h)
	if maxSideLen > 0 {
		side = min(side, maxSideLen)
	}
	return side + 2*padding
}

// ToSource maps a point in destination space back into source space.
func (p Param) ToSource(x, y float64) (float64, float64) {
	return x / p.RatioW, y / p.RatioH
}

// Identity reports whether the plan leaves the image unchanged.
func (p Param) Identity() bool {
	return p.SrcWidth == p.DstWidth && p.SrcHeight == p.DstHeight
}

func (p Param) String() string {
	return fmt.Sprintf("%dx%d -> %dx%d (%.4f, %.4f)",
		p.SrcWidth, p.SrcHeight, p.DstWidth, p.DstHeight, p.RatioW, p.RatioH)
}
