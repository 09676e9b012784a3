// Package mock builds synthetic network outputs and pure-Go stand-ins for the
// detection, classification and recognition models.
package mock

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/ocrlite/internal/onnx"
)

// ProbMap is a synthetic detection output with shape [1,1,H,W].
type ProbMap struct {
	Data   []float32
	Width  int
	Height int
}

// Tensor returns the map as a [1,1,H,W] tensor.
func (m ProbMap) Tensor() onnx.Tensor {
	return onnx.Tensor{Data: m.Data, Shape: []int64{1, 1, int64(m.Height), int64(m.Width)}}
}

// NewUniformMap creates a w x h map filled with value clamped to [0,1].
func NewUniformMap(w, h int, value float32) ProbMap {
	if w <= 0 || h <= 0 {
		return ProbMap{}
	}
	data := make([]float32, w*h)
	for i := range data {
		data[i] = clamp01(value)
	}
	return ProbMap{Data: data, Width: w, Height: h}
}

// NewRectMap creates a map that is hi inside each rectangle and lo elsewhere.
func NewRectMap(w, h int, rects []image.Rectangle, hi, lo float32) ProbMap {
	m := NewUniformMap(w, h, lo)
	bounds := image.Rect(0, 0, w, h)
	for _, r := range rects {
		r = r.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				m.Data[y*w+x] = clamp01(hi)
			}
		}
	}
	return m
}

// NewCenteredBlobMap creates a Gaussian blob centered in the map.
func NewCenteredBlobMap(w, h int, peak float32, sigma float64) ProbMap {
	if w <= 0 || h <= 0 {
		return ProbMap{}
	}
	data := make([]float32, w*h)
	cx := float64(w-1) / 2
	cy := float64(h-1) / 2
	inv2s2 := 1 / (2 * sigma * sigma)
	for y := range h {
		for x := range w {
			dx := float64(x) - cx
			dy := float64(y) - cy
			data[y*w+x] = clamp01(float32(math.Exp(-(dx*dx+dy*dy)*inv2s2)) * peak)
		}
	}
	return ProbMap{Data: data, Width: w, Height: h}
}

// NewTextStripeMap creates horizontal stripes of lineHeight rows separated by
// gap rows, mimicking lines of text.
func NewTextStripeMap(w, h int, lineHeight, gap int, hi, lo float32) ProbMap {
	if w <= 0 || h <= 0 || lineHeight <= 0 || gap < 0 {
		return ProbMap{}
	}
	data := make([]float32, w*h)
	period := lineHeight + gap
	for y := range h {
		v := lo
		if y%period < lineHeight {
			v = hi
		}
		v = clamp01(v)
		for x := range w {
			data[y*w+x] = v
		}
	}
	return ProbMap{Data: data, Width: w, Height: h}
}

// Layout selects the axis order of synthetic recognition logits.
type Layout int

const (
	// LayoutTNC is [T, 1, C], the layout of the CRNN model.
	LayoutTNC Layout = iota
	// LayoutNTC is [1, T, C].
	LayoutNTC
)

// NewGreedyPathLogits builds logits over classes whose per-step argmax is
// indices[t].
func NewGreedyPathLogits(indices []int, classes int, layout Layout, high, low float32) onnx.Tensor {
	if classes <= 0 || len(indices) == 0 {
		return onnx.Tensor{Shape: []int64{}}
	}
	t := len(indices)
	data := make([]float32, t*classes)
	for ti, c := range indices {
		for cls := range classes {
			v := low
			if cls == c {
				v = high
			}
			data[ti*classes+cls] = v
		}
	}
	shape := []int64{int64(t), 1, int64(classes)}
	if layout == LayoutNTC {
		shape = []int64{1, int64(t), int64(classes)}
	}
	return onnx.Tensor{Data: data, Shape: shape}
}

// DarkRegionDetector returns a detection model that marks dark input pixels
// as text. The input must be a normalized [1,3,H,W] tensor; a pixel counts as
// dark when its first channel is below zero, i.e. darker than the mean.
func DarkRegionDetector(hi, lo float32) onnx.ModelFunc {
	return func(in onnx.Tensor) (onnx.Tensor, error) {
		if err := onnx.VerifyImageTensor(in); err != nil {
			return onnx.Tensor{}, err
		}
		h, w := int(in.Shape[2]), int(in.Shape[3])
		out := make([]float32, w*h)
		for i := range out {
			out[i] = lo
			if in.Data[i] < 0 {
				out[i] = hi
			}
		}
		return onnx.Tensor{Data: out, Shape: []int64{1, 1, int64(h), int64(w)}}, nil
	}
}

// FixedAngleClassifier returns a classifier whose output always favours index
// among classes.
func FixedAngleClassifier(index, classes int) onnx.ModelFunc {
	return func(in onnx.Tensor) (onnx.Tensor, error) {
		if err := onnx.VerifyImageTensor(in); err != nil {
			return onnx.Tensor{}, err
		}
		if index < 0 || index >= classes {
			return onnx.Tensor{}, fmt.Errorf("index %d out of range for %d classes", index, classes)
		}
		out := make([]float32, classes)
		for i := range out {
			out[i] = 0.1
		}
		out[index] = 0.9
		return onnx.Tensor{Data: out, Shape: []int64{1, int64(classes)}}, nil
	}
}

// FixedRecognizer returns a recognition model that emits the same greedy path
// for every input, ignoring its width.
func FixedRecognizer(indices []int, classes int) onnx.ModelFunc {
	logits := NewGreedyPathLogits(indices, classes, LayoutTNC, 10, 0)
	return func(in onnx.Tensor) (onnx.Tensor, error) {
		if err := onnx.VerifyImageTensor(in); err != nil {
			return onnx.Tensor{}, err
		}
		return logits, nil
	}
}

// ErrInference is returned by Failing.
var ErrInference = errors.New("mock inference failure")

// Failing returns a model whose every run fails.
func Failing() onnx.ModelFunc {
	return func(onnx.Tensor) (onnx.Tensor, error) { return onnx.Tensor{}, ErrInference }
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
