package rectify

import (
	"image"

	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// warpPerspective fills a dstW x dstH image by mapping every destination pixel
// through h into src and sampling bilinearly. Samples outside src are opaque
// black.
func warpPerspective(src *image.NRGBA, h [9]float64, dstW, dstH int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	for y := range dstH {
		row := out.Pix[y*out.Stride : y*out.Stride+4*dstW]
		for x := range dstW {
			px := row[4*x : 4*x+4]
			sx, sy, ok := applyHomography(h, float64(x), float64(y))
			if !ok {
				px[3] = 0xff
				continue
			}
			bilinearSample(src, sx, sy, px)
		}
	}
	return out
}

// bilinearSample writes the interpolated color of src at (x, y) to px. src
// must be anchored at the origin.
func bilinearSample(src *image.NRGBA, x, y float64, px []uint8) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if x < 0 || y < 0 || x > float64(w-1) || y > float64(h-1) {
		px[0], px[1], px[2], px[3] = 0, 0, 0, 0xff
		return
	}
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	c00 := src.Pix[y0*src.Stride+4*x0:]
	c10 := src.Pix[y0*src.Stride+4*x1:]
	c01 := src.Pix[y1*src.Stride+4*x0:]
	c11 := src.Pix[y1*src.Stride+4*x1:]
	for c := range 4 {
		top := lerp(float64(c00[c]), float64(c10[c]), fx)
		bottom := lerp(float64(c01[c]), float64(c11[c]), fx)
		px[c] = uint8(lerp(top, bottom, fy) + 0.5)
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// quadFrom converts integer corners to float points.
func quadFrom(pts [4]image.Point) [4]utils.Point {
	var q [4]utils.Point
	for i, p := range pts {
		q[i] = utils.Pt(p)
	}
	return q
}
