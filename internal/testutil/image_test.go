package testutil

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTextImage(t *testing.T) {
	cfg := DefaultTextImageConfig()
	img := GenerateTextImage(cfg)

	assert.Equal(t, cfg.Width, img.Bounds().Dx())
	assert.Equal(t, cfg.Height, img.Bounds().Dy())
	assert.Positive(t, CountColor(img, color.Black), "text pixels should be drawn")
	assert.Positive(t, CountColor(img, color.White))
}

func TestCreateBlockImage(t *testing.T) {
	img := CreateBlockImage(50, 40, image.Rect(10, 10, 20, 15))
	assert.Equal(t, 50, CountColor(img, color.Black))
	assert.Equal(t, 50*40-50, CountColor(img, color.White))
}

func TestCompareImages(t *testing.T) {
	white := CreateTestImage(20, 20, color.White)
	black := CreateTestImage(20, 20, color.Black)

	assert.True(t, CompareImages(white, white, 0))
	assert.False(t, CompareImages(white, black, 0.1))
	assert.False(t, CompareImages(white, CreateTestImage(10, 20, color.White), 1))
}

func TestWriteAndLoadImage(t *testing.T) {
	img := CreateBlockImage(16, 16, image.Rect(0, 0, 8, 8))
	path := WriteImage(t, t.TempDir(), "block.png", img)

	loaded := LoadImage(t, path)
	assert.True(t, CompareImages(img, loaded, 0))
}
