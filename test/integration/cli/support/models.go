package support

import (
	"image"

	"github.com/MeKo-Tech/ocrlite/internal/onnx/mock"
	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/recognizer"
	"github.com/MeKo-Tech/ocrlite/internal/testutil"
)

// RecognizedText is what the mock recognizer reads from every region.
const RecognizedText = "abc"

// MockModels replaces the model files by pure Go fakes: the detector marks
// dark pixels as text and the recognizer always reads RecognizedText.
func MockModels(b *pipeline.Builder) *pipeline.Builder {
	return b.WithModels(
		mock.DarkRegionDetector(0.9, 0.1),
		mock.FixedAngleClassifier(1, 2),
		mock.FixedRecognizer([]int{1, 0, 2, 0, 3}, 4),
		recognizer.Keys{"", "a", "b", "c"},
	)
}

// textImage is a white page with one dark line for every block.
func textImage(blocks int) image.Image {
	rects := make([]image.Rectangle, blocks)
	for i := range rects {
		y := 30 + i*50
		rects[i] = image.Rect(60, y, 160, y+20)
	}
	return testutil.CreateBlockImage(220, 42+blocks*50, rects...)
}
