package orientation

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/onnx/mock"
	"github.com/MeKo-Tech/ocrlite/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreToAngle(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
		want   Angle
	}{
		{"empty", nil, Angle{Index: 0, Score: -1000}},
		{"upright", []float32{0.1, 0.9}, Angle{Index: 1, Score: float64(float32(0.9))}},
		{"rotated", []float32{0.8, 0.2}, Angle{Index: 0, Score: float64(float32(0.8))}},
		{"tie keeps first", []float32{0.5, 0.5}, Angle{Index: 0, Score: 0.5}},
		{"raw scores, no softmax", []float32{-3, 7, 2}, Angle{Index: 1, Score: 7}},
		{"all negative", []float32{-5, -2, -9}, Angle{Index: 1, Score: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreToAngle(tt.scores))
		})
	}
}

func angles(indexes ...int) []Angle {
	out := make([]Angle, len(indexes))
	for i, idx := range indexes {
		out[i] = Angle{Index: idx, Score: float64(i)}
	}
	return out
}

func indexesOf(as []Angle) []int {
	out := make([]int, len(as))
	for i, a := range as {
		out[i] = a.Index
	}
	return out
}

func TestVote(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []int
	}{
		{"empty", []int{}, []int{}},
		{"single rotated keeps its index", []int{0}, []int{0}},
		{"single upright keeps its index", []int{1}, []int{1}},
		{"mostly upright takes second", []int{0, 1, 1, 1}, []int{1, 1, 1, 1}},
		{"mostly rotated takes first", []int{0, 0, 0, 1}, []int{0, 0, 0, 0}},
		{"sum below half uses first even if upright", []int{1, 0, 0, 0, 0}, []int{1, 1, 1, 1, 1}},
		{"sum at half uses second", []int{1, 0, 1, 0}, []int{0, 0, 0, 0}},
		{"odd count integer half", []int{0, 1, 1}, []int{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := angles(tt.in...)
			got, err := Vote(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, indexesOf(got))
			assert.Equal(t, tt.in, indexesOf(in)[:len(tt.in)], "input must not change")
			for i := range got {
				assert.InDelta(t, float64(i), got[i].Score, 0, "scores are kept")
			}
		})
	}
}

func TestVote_NonBinary(t *testing.T) {
	_, err := Vote(angles(0, 2, 1))
	require.ErrorIs(t, err, ErrNonBinaryVote)

	_, err = Vote(angles(-1))
	require.ErrorIs(t, err, ErrNonBinaryVote)
}

func TestAdjustSize(t *testing.T) {
	t.Run("narrow strip is padded white on the right", func(t *testing.T) {
		strip := testutil.CreateTestImage(50, 32, color.Black)
		out := AdjustSize(strip, InputWidth, InputHeight)

		require.Equal(t, image.Rect(0, 0, 192, 64), out.Bounds())
		assert.Equal(t, color.NRGBA{0, 0, 0, 255}, out.NRGBAAt(0, 0))
		assert.Equal(t, color.NRGBA{0, 0, 0, 255}, out.NRGBAAt(99, 63))
		assert.Equal(t, color.NRGBA{255, 255, 255, 255}, out.NRGBAAt(100, 0))
	})
	t.Run("wide strip is cut off", func(t *testing.T) {
		strip := testutil.CreateTestImage(400, 32, color.Black)
		out := AdjustSize(strip, InputWidth, InputHeight)

		require.Equal(t, image.Rect(0, 0, 192, 64), out.Bounds())
		assert.Equal(t, 192*64, testutil.CountColor(out, color.Black))
	})
	t.Run("very tall strip keeps one column", func(t *testing.T) {
		strip := testutil.CreateTestImage(1, 500, color.Black)
		out := AdjustSize(strip, InputWidth, InputHeight)
		assert.Equal(t, 64, testutil.CountColor(out, color.Black))
	})
}

func strips(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = testutil.CreateTestImage(80+10*i, 24, color.White)
	}
	return out
}

func TestClassifier_CalcAngleOff(t *testing.T) {
	var calls atomic.Int32
	model := onnx.ModelFunc(func(in onnx.Tensor) (onnx.Tensor, error) {
		calls.Add(1)
		return onnx.Tensor{Data: []float32{0, 1}, Shape: []int64{1, 2}}, nil
	})
	c, err := NewWithModel(model, DefaultConfig())
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), strips(3), false, true)
	require.NoError(t, err)
	assert.Equal(t, []Angle{{Index: -1}, {Index: -1}, {Index: -1}}, got)
	assert.Zero(t, calls.Load(), "model must not run")
}

func TestClassifier_Classify(t *testing.T) {
	c, err := NewWithModel(mock.FixedAngleClassifier(0, 2), DefaultConfig())
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), strips(4), true, false)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, a := range got {
		assert.Equal(t, Rotated, a.Index)
		assert.True(t, a.NeedsRotation())
		assert.InDelta(t, 0.9, a.Score, 1e-6)
		assert.Positive(t, a.Elapsed)
	}
}

func TestClassifier_InputShape(t *testing.T) {
	var shape []int64
	model := onnx.ModelFunc(func(in onnx.Tensor) (onnx.Tensor, error) {
		shape = in.Shape
		return onnx.Tensor{Data: []float32{0.2, 0.8}, Shape: []int64{1, 2}}, nil
	})
	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	c, err := NewWithModel(model, cfg)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), strips(1), true, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, InputHeight, InputWidth}, shape)
}

// rightEdgeModel calls a strip rotated when the bottom-right input pixel is
// white canvas, i.e. the strip was narrower than the classifier input.
func rightEdgeModel() onnx.ModelFunc {
	return func(in onnx.Tensor) (onnx.Tensor, error) {
		h, w := int(in.Shape[2]), int(in.Shape[3])
		if in.Data[h*w-1] > 0 {
			return onnx.Tensor{Data: []float32{0.9, 0.1}, Shape: []int64{1, 2}}, nil
		}
		return onnx.Tensor{Data: []float32{0.1, 0.9}, Shape: []int64{1, 2}}, nil
	}
}

func blackStrips(widths ...int) []image.Image {
	out := make([]image.Image, len(widths))
	for i, w := range widths {
		out[i] = testutil.CreateTestImage(w, 32, color.Black)
	}
	return out
}

func TestClassifier_MostAngle(t *testing.T) {
	c, err := NewWithModel(rightEdgeModel(), DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	// narrow strips come out rotated, wide ones upright
	got, err := c.Classify(ctx, blackStrips(30, 200, 200, 200), true, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 1}, indexesOf(got))

	got, err = c.Classify(ctx, blackStrips(30, 200, 200, 200), true, true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 1}, indexesOf(got))

	got, err = c.Classify(ctx, blackStrips(30, 30, 30, 200), true, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, indexesOf(got))
}

func TestClassifier_MostAngleRejectsMultiClass(t *testing.T) {
	c, err := NewWithModel(mock.FixedAngleClassifier(2, 4), DefaultConfig())
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), strips(2), true, true)
	require.ErrorIs(t, err, ErrNonBinaryVote)

	got, err := c.Classify(context.Background(), strips(2), true, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, indexesOf(got), "without voting the raw index is reported")
}

func TestClassifier_Errors(t *testing.T) {
	c, err := NewWithModel(mock.Failing(), DefaultConfig())
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), strips(2), true, false)
	require.ErrorIs(t, err, mock.ErrInference)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := NewWithModel(mock.FixedAngleClassifier(1, 2), DefaultConfig())
	require.NoError(t, err)
	_, err = ok.Classify(ctx, strips(2), true, false)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, ok.Close())
	_, err = ok.Classify(context.Background(), strips(1), true, false)
	require.Error(t, err)

	_, err = NewWithModel(nil, DefaultConfig())
	require.Error(t, err)
}

func TestNewClassifier_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "cls.onnx")
	_, err := NewClassifier(cfg)
	require.ErrorIs(t, err, models.ErrModelNotFound)
}

func TestClassifier_Integration(t *testing.T) {
	dir := testutil.RequireModels(t, models.Classification)

	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(dir, models.Classification)
	c, err := NewClassifier(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	text := testutil.DefaultTextImageConfig()
	text.Width, text.Height = 200, 32
	text.Scale = 1
	got, err := c.Classify(context.Background(), []image.Image{testutil.GenerateTextImage(text)}, true, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, []int{Rotated, Upright}, got[0].Index)
}
