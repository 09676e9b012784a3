package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextImageConfig describes a synthetic page of text.
type TextImageConfig struct {
	Lines      []string
	Width      int
	Height     int
	Scale      int // integer upscaling of the 7x13 glyphs
	Background color.Color
	Foreground color.Color
	Rotation   float64 // degrees, counter-clockwise
}

// DefaultTextImageConfig returns a single line of black text on white.
func DefaultTextImageConfig() TextImageConfig {
	return TextImageConfig{
		Lines:      []string{"Sample Text"},
		Width:      320,
		Height:     120,
		Scale:      2,
		Background: color.White,
		Foreground: color.Black,
	}
}

// GenerateTextImage renders cfg.Lines centered on the canvas.
func GenerateTextImage(cfg TextImageConfig) *image.NRGBA {
	face := basicfont.Face7x13
	scale := max(cfg.Scale, 1)
	w := max(cfg.Width/scale, 1)
	h := max(cfg.Height/scale, 1)

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: small, Src: &image.Uniform{cfg.Foreground}, Face: face}
	lineHeight := face.Metrics().Height.Ceil()
	startY := (h - len(cfg.Lines)*lineHeight) / 2
	for i, line := range cfg.Lines {
		textWidth := font.MeasureString(face, line).Ceil()
		drawer.Dot = fixed.P((w-textWidth)/2, startY+(i+1)*lineHeight-face.Metrics().Descent.Ceil())
		drawer.DrawString(line)
	}

	img := imaging.Resize(small, w*scale, h*scale, imaging.NearestNeighbor)
	if cfg.Rotation != 0 {
		img = imaging.Rotate(img, cfg.Rotation, cfg.Background)
	}
	return img
}

// CreateTestImage creates a uniformly colored image.
func CreateTestImage(width, height int, background color.Color) *image.NRGBA {
	return imaging.New(width, height, background)
}

// CreateBlockImage creates a white image with black filled rectangles, a
// stand-in for text lines that the dark-region mock detector picks up.
func CreateBlockImage(width, height int, blocks ...image.Rectangle) *image.NRGBA {
	img := imaging.New(width, height, color.White)
	for _, r := range blocks {
		draw.Draw(img, r, &image.Uniform{color.Black}, image.Point{}, draw.Src)
	}
	return img
}

// WriteImage saves img as PNG (or by extension) under dir and returns the path.
func WriteImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	require.NoError(t, EnsureDir(dir))
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
	return path
}

// LoadImage loads an image from path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to open image file %s", path)
	return img
}

// CompareImages reports whether two images have equal bounds and a mean RGBA
// distance of at most tolerance (0..1).
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b1, b2 := img1.Bounds(), img2.Bounds()
	if b1.Size() != b2.Size() {
		return false
	}
	if b1.Empty() {
		return true
	}

	var total float64
	for y := range b1.Dy() {
		for x := range b1.Dx() {
			r1, g1, bl1, a1 := img1.At(b1.Min.X+x, b1.Min.Y+y).RGBA()
			r2, g2, bl2, a2 := img2.At(b2.Min.X+x, b2.Min.Y+y).RGBA()
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(bl1) - float64(bl2)
			da := float64(a1) - float64(a2)
			total += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
		}
	}
	avg := total / float64(b1.Dx()*b1.Dy())
	return avg/math.Sqrt(4*65535*65535) <= tolerance
}

// CountColor counts the pixels of img equal to c.
func CountColor(img image.Image, c color.Color) int {
	want := color.NRGBAModel.Convert(c)
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.NRGBAModel.Convert(img.At(x, y)) == want {
				n++
			}
		}
	}
	return n
}

// KeysFile writes one key per line to dir/keys.txt and returns the path.
func KeysFile(t *testing.T, dir string, keys ...string) string {
	t.Helper()
	return WriteFile(t, dir, "keys.txt", strings.Join(keys, "\n")+"\n")
}
