package rectify

import (
	"math"

	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// pivotEpsilon marks a pivot as zero during elimination.
const pivotEpsilon = 1e-10

// computeHomography computes the 3x3 matrix H (row-major, h22 = 1) mapping
// p[i] to q[i]. It reports false when the points admit no unique solution.
func computeHomography(p, q [4]utils.Point) ([9]float64, bool) {
	var a [8][8]float64
	var b [8]float64
	for i := range 4 {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		r := 2 * i
		// x = (h00 X + h01 Y + h02) / (h20 X + h21 Y + 1)
		a[r] = [8]float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x}
		b[r] = x
		// y = (h10 X + h11 Y + h12) / (h20 X + h21 Y + 1)
		a[r+1] = [8]float64{0, 0, 0, X, Y, 1, -X * y, -Y * y}
		b[r+1] = y
	}

	h, ok := solve8x8(a, b)
	if !ok {
		return [9]float64{}, false
	}
	return [9]float64{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}, true
}

// solve8x8 solves a*x = b by Gauss-Jordan elimination with partial pivoting.
func solve8x8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	for col := range 8 {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < pivotEpsilon {
			return [8]float64{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		div := a[col][col]
		for c := col; c < 8; c++ {
			a[col][c] /= div
		}
		b[col] /= div

		for r := range 8 {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for c := col; c < 8; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	return b, true
}

// applyHomography maps (x, y) through h. ok is false when the point maps to
// infinity.
func applyHomography(h [9]float64, x, y float64) (float64, float64, bool) {
	denom := h[6]*x + h[7]*y + h[8]
	if denom == 0 {
		return 0, 0, false
	}
	return (h[0]*x + h[1]*y + h[2]) / denom, (h[3]*x + h[4]*y + h[5]) / denom, true
}
