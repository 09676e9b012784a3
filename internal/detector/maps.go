package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/ocrlite/internal/mempool"
)

// ProbabilityMap is the per-pixel text probability produced by the detection
// network, row-major.
type ProbabilityMap struct {
	Data   []float32
	Width  int
	Height int
}

// NewProbabilityMap wraps data as a w x h map.
func NewProbabilityMap(data []float32, w, h int) (ProbabilityMap, error) {
	if w <= 0 || h <= 0 {
		return ProbabilityMap{}, fmt.Errorf("invalid map size %dx%d", w, h)
	}
	if len(data) != w*h {
		return ProbabilityMap{}, fmt.Errorf("map data length %d != %d", len(data), w*h)
	}
	return ProbabilityMap{Data: data, Width: w, Height: h}, nil
}

// At returns the probability at (x, y).
func (m ProbabilityMap) At(x, y int) float32 { return m.Data[y*m.Width+x] }

// BinaryMap is a thresholded ProbabilityMap.
type BinaryMap struct {
	Data   []bool
	Width  int
	Height int
}

// At reports whether (x, y) is foreground; outside the map is background.
func (b BinaryMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Data[y*b.Width+x]
}

// Release returns the backing buffer to the pool. The map must not be used
// afterwards.
func (b *BinaryMap) Release() {
	mempool.PutBool(b.Data)
	b.Data = nil
}

var errEmptyMap = errors.New("empty probability map")

// Binarize marks every pixel with probability strictly greater than threshold.
func Binarize(prob ProbabilityMap, threshold float32) (BinaryMap, error) {
	if prob.Width <= 0 || prob.Height <= 0 || len(prob.Data) != prob.Width*prob.Height {
		return BinaryMap{}, errEmptyMap
	}
	mask := mempool.GetBool(len(prob.Data))
	for i, p := range prob.Data {
		mask[i] = p > threshold
	}
	return BinaryMap{Data: mask, Width: prob.Width, Height: prob.Height}, nil
}
