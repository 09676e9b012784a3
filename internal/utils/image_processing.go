package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/MeKo-Tech/ocrlite/internal/mempool"
	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// Resize scales img to exactly w x h using linear interpolation.
func Resize(img image.Image, w, h int) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if w <= 0 || h <= 0 {
		return nil, &ImageProcessingError{Operation: "resize", Err: fmt.Errorf("invalid target size %dx%d", w, h)}
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img), nil
	}
	return imaging.Resize(img, w, h, imaging.Linear), nil
}

// Pad surrounds img with a uniform border of padding pixels in the fill color.
// The source is placed at (padding, padding) of the result.
func Pad(img image.Image, padding int, fill color.Color) *image.NRGBA {
	if padding <= 0 {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	out := imaging.New(b.Dx()+2*padding, b.Dy()+2*padding, fill)
	return imaging.Paste(out, img, image.Pt(padding, padding))
}

// PasteOnCanvas places img at the top-left corner of a w x h canvas filled with
// bg. Parts of img outside the canvas are cut off.
func PasteOnCanvas(img image.Image, w, h int, bg color.Color) *image.NRGBA {
	canvas := imaging.New(w, h, bg)
	return imaging.Paste(canvas, img, image.Pt(0, 0))
}

// ChannelOrder selects the plane order of a normalized tensor.
type ChannelOrder int

const (
	// RGB emits planes R, G, B.
	RGB ChannelOrder = iota
	// BGR emits planes B, G, R, the order OpenCV-trained networks expect.
	BGR
)

// NormalizeImage converts img to a planar NCHW float32 buffer in the given
// channel order, applying (pixel - mean[c]) * norm[c] where c indexes the
// output plane. The buffer comes from mempool; release it with
// mempool.PutFloat32 once the tensor has been consumed.
func NormalizeImage(img image.Image, mean, norm [3]float32, order ChannelOrder) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	src, ok := img.(*image.NRGBA)
	if !ok || src.Rect.Min != (image.Point{}) {
		src = imaging.Clone(img)
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("empty image")}
	}

	// source channel offset per output plane
	ch := [3]int{0, 1, 2}
	if order == BGR {
		ch = [3]int{2, 1, 0}
	}

	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := src.Pix[y*src.Stride : y*src.Stride+4*w]
		for x := range w {
			i := y*w + x
			px := row[4*x : 4*x+4]
			data[i] = (float32(px[ch[0]]) - mean[0]) * norm[0]
			data[plane+i] = (float32(px[ch[1]]) - mean[1]) * norm[1]
			data[2*plane+i] = (float32(px[ch[2]]) - mean[2]) * norm[2]
		}
	}
	return data, w, h, nil
}
