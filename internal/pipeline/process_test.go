package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/detector"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/onnx/mock"
	"github.com/MeKo-Tech/ocrlite/internal/orientation"
	"github.com/MeKo-Tech/ocrlite/internal/testutil"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.NRGBA{R: 255, A: 255}

// blockImage is 220x92 so that with the default padding the detector input
// is exactly 320x192 and no resize happens.
func blockImage() *image.NRGBA {
	return testutil.CreateBlockImage(220, 92, image.Rect(60, 30, 160, 50))
}

func TestProcess_SingleBlock(t *testing.T) {
	p := newFakePipeline(t, newFakeBuilder())

	res, err := p.Process(context.Background(), blockImage())
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)

	b := res.Blocks[0]
	assert.Equal(t, "abc", b.Text)
	assert.Len(t, b.CharScores, 3)
	assert.InDelta(t, 0.9, b.BoxScore, 1e-6)
	assert.Equal(t, orientation.Upright, b.AngleIndex)
	assert.InDelta(t, 0.9, b.AngleScore, 1e-6)
	assert.Equal(t, b.AngleTime+b.CrnnTime, b.BlockTime)

	// unclipped box around the block, back in input coordinates
	r := utils.BoundingRect(b.Points[:])
	assert.True(t, image.Rect(60, 30, 159, 49).In(r), "box %v should cover the block", r)
	assert.True(t, r.In(image.Rect(40, 10, 180, 70)), "box %v is too large", r)
	assert.InDelta(t, 44, b.Points[0].X, 2)
	assert.InDelta(t, 14, b.Points[0].Y, 2)
	assert.InDelta(t, 175, b.Points[2].X, 2)
	assert.InDelta(t, 65, b.Points[2].Y, 2)

	assert.Equal(t, "abc\n", res.Text)
	assert.Positive(t, res.DetectionTime)
	assert.GreaterOrEqual(t, res.TotalTime, res.DetectionTime)

	require.NotNil(t, res.Image)
	assert.Equal(t, image.Rect(0, 0, 220, 92), res.Image.Bounds())
	assert.Positive(t, testutil.CountColor(res.Image, red), "boxes are drawn in red")
}

func TestProcess_BoxColor(t *testing.T) {
	green := color.NRGBA{G: 255, A: 255}
	p := newFakePipeline(t, newFakeBuilder().WithBoxColor(green))

	res, err := p.Process(context.Background(), blockImage())
	require.NoError(t, err)
	assert.Positive(t, testutil.CountColor(res.Image, green))
	assert.Zero(t, testutil.CountColor(res.Image, red))
}

func TestProcess_NoRegions(t *testing.T) {
	p := newFakePipeline(t, newFakeBuilder())

	res, err := p.Process(context.Background(), testutil.CreateTestImage(120, 80, color.White))
	require.NoError(t, err)
	assert.Empty(t, res.Blocks)
	assert.Empty(t, res.Text)
	require.NotNil(t, res.Image)
	assert.Equal(t, image.Rect(0, 0, 120, 80), res.Image.Bounds())
	assert.Zero(t, testutil.CountColor(res.Image, red))
}

func TestProcess_NoPadding(t *testing.T) {
	p := newFakePipeline(t, newFakeBuilder().WithPadding(0, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))

	img := testutil.CreateBlockImage(320, 192, image.Rect(110, 80, 210, 100))
	res, err := p.Process(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.InDelta(t, 94, res.Blocks[0].Points[0].X, 2)
	assert.Equal(t, image.Rect(0, 0, 320, 192), res.Image.Bounds())
}

func TestProcess_AngleDisabled(t *testing.T) {
	var calls atomic.Int32
	cls := onnx.ModelFunc(func(in onnx.Tensor) (onnx.Tensor, error) {
		calls.Add(1)
		return mock.FixedAngleClassifier(0, 2)(in)
	})
	b := newFakeBuilder().WithAngle(false, false)
	b.clsModel = cls
	p := newFakePipeline(t, b)

	res, err := p.Process(context.Background(), blockImage())
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, orientation.NotComputed, res.Blocks[0].AngleIndex)
	assert.Zero(t, res.Blocks[0].AngleScore)
	assert.Zero(t, calls.Load())
}

func TestProcess_RotatesUpsideDownStrips(t *testing.T) {
	b := newFakeBuilder()
	b.clsModel = mock.FixedAngleClassifier(0, 2)
	p := newFakePipeline(t, b)

	img := blockImage()
	// mark the left end of the block so the strip is not symmetric
	for y := 30; y < 50; y++ {
		for x := 60; x < 70; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 0, B: 0, A: 255})
		}
	}

	res, art, err := p.run(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, orientation.Rotated, res.Blocks[0].AngleIndex)
	require.Len(t, art.strips, 1)
	require.Len(t, art.parts, 1)
	assert.True(t, testutil.CompareImages(utils.Rotate180(art.strips[0]), art.parts[0], 0))
	assert.False(t, testutil.CompareImages(art.strips[0], art.parts[0], 0))
}

func TestProcess_MostAngleVote(t *testing.T) {
	// the first strip reads as rotated, every later one as upright
	cls := onnx.ModelFunc(func(in onnx.Tensor) (onnx.Tensor, error) {
		return onnx.Tensor{Data: []float32{0.2, 0.8}, Shape: []int64{1, 2}}, nil
	})
	var n atomic.Int32
	flipFirst := onnx.ModelFunc(func(in onnx.Tensor) (onnx.Tensor, error) {
		if n.Add(1) == 1 {
			return onnx.Tensor{Data: []float32{0.8, 0.2}, Shape: []int64{1, 2}}, nil
		}
		return cls(in)
	})

	b := newFakeBuilder().WithParallelWorkers(1)
	b.clsModel = flipFirst
	p := newFakePipeline(t, b)

	img := testutil.CreateBlockImage(300, 300,
		image.Rect(40, 40, 200, 60),
		image.Rect(40, 120, 200, 140),
		image.Rect(40, 200, 200, 220))
	res, err := p.Process(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 3)
	// indexes 0,1,1: sum 2 >= 3/2, every strip takes the second strip's index
	for _, blk := range res.Blocks {
		assert.Equal(t, orientation.Upright, blk.AngleIndex)
	}
}

func TestProcess_Errors(t *testing.T) {
	t.Run("nil image", func(t *testing.T) {
		p := newFakePipeline(t, newFakeBuilder())
		_, err := p.Process(context.Background(), nil)
		require.Error(t, err)
	})

	t.Run("empty image", func(t *testing.T) {
		p := newFakePipeline(t, newFakeBuilder())
		_, err := p.Process(context.Background(), image.NewNRGBA(image.Rectangle{}))
		var ipe *utils.ImageProcessingError
		require.ErrorAs(t, err, &ipe)
	})

	t.Run("uninitialized", func(t *testing.T) {
		var p *Pipeline
		_, err := p.Process(context.Background(), blockImage())
		require.Error(t, err)
	})

	t.Run("detection failure", func(t *testing.T) {
		b := newFakeBuilder()
		b.detModel = mock.Failing()
		p := newFakePipeline(t, b)
		_, err := p.Process(context.Background(), blockImage())
		require.ErrorIs(t, err, mock.ErrInference)
		assert.Contains(t, err.Error(), "detection")
	})

	t.Run("angle failure", func(t *testing.T) {
		b := newFakeBuilder()
		b.clsModel = mock.Failing()
		p := newFakePipeline(t, b)
		_, err := p.Process(context.Background(), blockImage())
		require.ErrorIs(t, err, mock.ErrInference)
		assert.Contains(t, err.Error(), "orientation")
	})

	t.Run("recognition failure", func(t *testing.T) {
		b := newFakeBuilder()
		b.recModel = mock.Failing()
		p := newFakePipeline(t, b)
		_, err := p.Process(context.Background(), blockImage())
		require.ErrorIs(t, err, mock.ErrInference)
		assert.Contains(t, err.Error(), "recognition")
	})

	t.Run("cancelled", func(t *testing.T) {
		p := newFakePipeline(t, newFakeBuilder())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Process(ctx, blockImage())
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing file", func(t *testing.T) {
		p := newFakePipeline(t, newFakeBuilder())
		_, err := p.ProcessFile(context.Background(), "/no/such/image.png")
		require.Error(t, err)
	})
}

func TestRectifyAll_SkipsDegenerateRegions(t *testing.T) {
	p := newFakePipeline(t, newFakeBuilder())

	src := testutil.CreateTestImage(100, 60, color.White)
	good := detector.TextBox{Points: [4]image.Point{{10, 10}, {60, 10}, {60, 30}, {10, 30}}, Score: 0.8}
	flat := detector.TextBox{Points: [4]image.Point{{20, 40}, {20, 40}, {20, 40}, {20, 40}}, Score: 0.7}

	kept, strips, err := p.rectifyAll(context.Background(), src, []detector.TextBox{flat, good, flat})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	require.Len(t, strips, 1)
	assert.Equal(t, good, kept[0])
	assert.Equal(t, image.Rect(0, 0, 50, 20), strips[0].Bounds())
}

type recordingObserver struct {
	mu      sync.Mutex
	stages  map[string]time.Duration
	regions []int
}

func (o *recordingObserver) ObserveStage(stage string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stages == nil {
		o.stages = map[string]time.Duration{}
	}
	o.stages[stage] = d
}

func (o *recordingObserver) ObserveRegions(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.regions = append(o.regions, n)
}

func TestProcess_Observer(t *testing.T) {
	obs := &recordingObserver{}
	p := newFakePipeline(t, newFakeBuilder().WithObserver(obs))

	res, err := p.Process(context.Background(), blockImage())
	require.NoError(t, err)

	for _, s := range []string{StageDetection, StageRectify, StageOrientation, StageRecognition, StageTotal} {
		assert.Contains(t, obs.stages, s)
	}
	assert.Equal(t, res.DetectionTime, obs.stages[StageDetection])
	assert.Equal(t, res.TotalTime, obs.stages[StageTotal])
	assert.Equal(t, []int{1}, obs.regions)
}
