package recognizer

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/onnx/mock"
	"github.com/MeKo-Tech/ocrlite/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeToHeight(t *testing.T) {
	tests := []struct {
		w, h  int
		wantW int
	}{
		{100, 32, 100},
		{100, 64, 50},
		{45, 20, 72},
		{1, 500, 1},
	}
	for _, tt := range tests {
		out, err := ResizeToHeight(testutil.CreateTestImage(tt.w, tt.h, color.White), InputHeight)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, tt.wantW, InputHeight), out.Bounds(), "%dx%d", tt.w, tt.h)
	}

	_, err := ResizeToHeight(image.NewNRGBA(image.Rectangle{}), InputHeight)
	require.Error(t, err)
}

func TestSequenceDims(t *testing.T) {
	tests := []struct {
		shape   []int64
		steps   int
		classes int
	}{
		{[]int64{25, 1, 5531}, 25, 5531},
		{[]int64{1, 25, 5531}, 25, 5531},
		{[]int64{1, 1, 25, 5531}, 25, 5531},
		{[]int64{1, 1, 5531}, 1, 5531},
		{[]int64{25, 1}, 25, 1},
	}
	for _, tt := range tests {
		steps, classes, err := SequenceDims(tt.shape)
		require.NoError(t, err, "%v", tt.shape)
		assert.Equal(t, tt.steps, steps, "%v", tt.shape)
		assert.Equal(t, tt.classes, classes, "%v", tt.shape)
	}

	_, _, err := SequenceDims([]int64{1, 1})
	require.Error(t, err)
	_, _, err = SequenceDims(nil)
	require.Error(t, err)
}

func TestRecognizer_Recognize(t *testing.T) {
	r, err := NewWithModel(mock.FixedRecognizer([]int{0, 3, 3, 0, 1, 2}, 4), abc, DefaultConfig())
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	line, err := r.Recognize(testutil.CreateTestImage(120, 40, color.White))
	require.NoError(t, err)
	assert.Equal(t, "cab", line.Text)
	assert.Len(t, line.CharScores, 3)
	assert.Positive(t, line.Elapsed)
}

func TestRecognizer_InputShape(t *testing.T) {
	var shape []int64
	model := onnx.ModelFunc(func(in onnx.Tensor) (onnx.Tensor, error) {
		shape = in.Shape
		return mock.NewGreedyPathLogits([]int{1}, 4, mock.LayoutTNC, 10, 0), nil
	})
	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	r, err := NewWithModel(model, abc, cfg)
	require.NoError(t, err)

	_, err = r.Recognize(testutil.CreateTestImage(90, 45, color.White))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 32, 64}, shape)
}

func TestRecognizer_NTCLayout(t *testing.T) {
	logits := mock.NewGreedyPathLogits([]int{2, 2, 0, 2}, 4, mock.LayoutNTC, 10, 0)
	model := onnx.ModelFunc(func(onnx.Tensor) (onnx.Tensor, error) { return logits, nil })
	r, err := NewWithModel(model, abc, DefaultConfig())
	require.NoError(t, err)

	line, err := r.Recognize(testutil.CreateTestImage(64, 32, color.White))
	require.NoError(t, err)
	assert.Equal(t, "bb", line.Text)
}

func TestRecognizer_RecognizeAll(t *testing.T) {
	// text length follows the strip width
	model := onnx.ModelFunc(func(in onnx.Tensor) (onnx.Tensor, error) {
		n := int(in.Shape[3]) / 32
		path := make([]int, 0, 2*n)
		for range n {
			path = append(path, 1, 0)
		}
		return mock.NewGreedyPathLogits(path, 4, mock.LayoutTNC, 10, 0), nil
	})
	r, err := NewWithModel(model, abc, DefaultConfig())
	require.NoError(t, err)

	imgs := []image.Image{
		testutil.CreateTestImage(96, 32, color.White),
		testutil.CreateTestImage(32, 32, color.White),
		testutil.CreateTestImage(64, 32, color.White),
	}
	lines, err := r.RecognizeAll(context.Background(), imgs)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "aaa", lines[0].Text)
	assert.Equal(t, "a", lines[1].Text)
	assert.Equal(t, "aa", lines[2].Text)
}

func TestRecognizer_Errors(t *testing.T) {
	_, err := NewWithModel(nil, abc, DefaultConfig())
	require.Error(t, err)
	_, err = NewWithModel(mock.Failing(), nil, DefaultConfig())
	require.Error(t, err)

	r, err := NewWithModel(mock.Failing(), abc, DefaultConfig())
	require.NoError(t, err)
	_, err = r.Recognize(testutil.CreateTestImage(64, 32, color.White))
	require.ErrorIs(t, err, mock.ErrInference)

	_, err = r.RecognizeAll(context.Background(), []image.Image{testutil.CreateTestImage(64, 32, color.White)})
	require.ErrorIs(t, err, mock.ErrInference)

	_, err = r.Recognize(nil)
	require.Error(t, err)

	require.NoError(t, r.Close())
	_, err = r.Recognize(testutil.CreateTestImage(64, 32, color.White))
	require.Error(t, err)
}

func TestNewRecognizer_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(dir, models.Recognition)
	cfg.KeysPath = filepath.Join(dir, models.Keys)

	_, err := NewRecognizer(cfg)
	require.ErrorIs(t, err, models.ErrModelNotFound)

	cfg.KeysPath = testutil.KeysFile(t, dir, "", "a")
	_, err = NewRecognizer(cfg)
	require.ErrorIs(t, err, models.ErrModelNotFound)
}

func TestRecognizer_Integration(t *testing.T) {
	dir := testutil.RequireModels(t, models.Recognition, models.Keys)

	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(dir, models.Recognition)
	cfg.KeysPath = filepath.Join(dir, models.Keys)
	r, err := NewRecognizer(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	text := testutil.DefaultTextImageConfig()
	text.Lines = []string{"HELLO"}
	text.Width, text.Height = 160, 48
	line, err := r.Recognize(testutil.GenerateTextImage(text))
	require.NoError(t, err)
	assert.NotEmpty(t, line.Text)
}
