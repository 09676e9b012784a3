package rectify

import (
	"testing"

	"github.com/MeKo-Tech/ocrlite/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHomography_Identity(t *testing.T) {
	p := [4]utils.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

	h, ok := computeHomography(p, p)
	require.True(t, ok)
	want := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	for i := range h {
		assert.InDelta(t, want[i], h[i], 1e-9, "h[%d]", i)
	}
}

func TestComputeHomography_MapsCorners(t *testing.T) {
	p := [4]utils.Point{{X: 0, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 10}, {X: 0, Y: 10}}
	q := [4]utils.Point{{X: 3, Y: 7}, {X: 45, Y: 2}, {X: 47, Y: 15}, {X: 4, Y: 19}}

	h, ok := computeHomography(p, q)
	require.True(t, ok)
	for i := range p {
		x, y, ok := applyHomography(h, p[i].X, p[i].Y)
		require.True(t, ok)
		assert.InDelta(t, q[i].X, x, 1e-6)
		assert.InDelta(t, q[i].Y, y, 1e-6)
	}
}

func TestComputeHomography_Degenerate(t *testing.T) {
	same := [4]utils.Point{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}
	_, ok := computeHomography(same, same)
	assert.False(t, ok)
}

func TestApplyHomography(t *testing.T) {
	h := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	x, y, ok := applyHomography(h, 10, 20)
	require.True(t, ok)
	assert.InDelta(t, 10.0, x, 1e-12)
	assert.InDelta(t, 20.0, y, 1e-12)

	h[8] = 0
	_, _, ok = applyHomography(h, 0, 0)
	assert.False(t, ok)
}

func TestSolve8x8(t *testing.T) {
	var a [8][8]float64
	var b [8]float64
	for i := range 8 {
		a[i][(i+3)%8] = 2
		b[i] = float64(i + 1)
	}

	x, ok := solve8x8(a, b)
	require.True(t, ok)
	for i := range 8 {
		assert.InDelta(t, float64(i+1)/2, x[(i+3)%8], 1e-12)
	}

	_, ok = solve8x8([8][8]float64{}, b)
	assert.False(t, ok)
}
