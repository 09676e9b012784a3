package rectify

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
)

func TestBilinearSample(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})
	src.SetNRGBA(1, 0, color.NRGBA{200, 100, 50, 255})

	px := make([]uint8, 4)
	bilinearSample(src, 0.5, 0, px)
	assert.Equal(t, []uint8{100, 50, 25, 255}, px)

	bilinearSample(src, 1, 0, px)
	assert.Equal(t, []uint8{200, 100, 50, 255}, px)

	bilinearSample(src, 1.5, 0, px)
	assert.Equal(t, []uint8{0, 0, 0, 255}, px, "outside is opaque black")

	bilinearSample(src, -0.1, 0, px)
	assert.Equal(t, []uint8{0, 0, 0, 255}, px)
}

func TestWarpPerspective_Identity(t *testing.T) {
	src := imaging.New(8, 6, color.NRGBA{10, 20, 30, 255})
	src.SetNRGBA(3, 2, color.NRGBA{255, 0, 0, 255})

	out := warpPerspective(src, [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, 8, 6)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestWarpPerspective_Translation(t *testing.T) {
	src := imaging.New(10, 10, color.White)
	src.SetNRGBA(5, 5, color.NRGBA{0, 0, 255, 255})

	// destination (x, y) samples source (x+2, y+3)
	out := warpPerspective(src, [9]float64{1, 0, 2, 0, 1, 3, 0, 0, 1}, 4, 4)
	assert.Equal(t, color.NRGBA{0, 0, 255, 255}, out.NRGBAAt(3, 2))
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, out.NRGBAAt(0, 0))
}
