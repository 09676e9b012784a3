package pipeline

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/onnx/mock"
	"github.com/MeKo-Tech/ocrlite/internal/recognizer"
	"github.com/MeKo-Tech/ocrlite/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var abc = recognizer.Keys{"", "a", "b", "c"}

// newFakeBuilder wires the pure-Go detector, an upright angle classifier and
// a recognizer that always reads "abc".
func newFakeBuilder() *Builder {
	return NewBuilder().
		WithModels(
			mock.DarkRegionDetector(0.9, 0.1),
			mock.FixedAngleClassifier(1, 2),
			mock.FixedRecognizer([]int{1, 0, 2, 0, 3}, 4),
			abc,
		).
		WithParallelWorkers(2)
}

func newFakePipeline(t *testing.T, b *Builder) *Pipeline {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 50, cfg.Padding)
	assert.Equal(t, 1024, cfg.MaxSideLen)
	assert.True(t, cfg.CalcAngle)
	assert.True(t, cfg.MostAngle)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, cfg.PadColor)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, cfg.BoxColor)
	assert.Equal(t, models.Detection, filepath.Base(cfg.Detector.ModelPath))
	assert.Equal(t, models.Classification, filepath.Base(cfg.Orientation.ModelPath))
	assert.Equal(t, models.Recognition, filepath.Base(cfg.Recognizer.ModelPath))
	assert.Equal(t, models.Keys, filepath.Base(cfg.Recognizer.KeysPath))
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative padding", func(c *Config) { c.Padding = -1 }},
		{"negative max side", func(c *Config) { c.MaxSideLen = -5 }},
		{"box threshold out of range", func(c *Config) { c.Detector.BoxThreshold = 1.5 }},
		{"zero unclip ratio", func(c *Config) { c.Detector.PostProcess.UnclipRatio = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestBuilder_WithModelsDir(t *testing.T) {
	b := NewBuilder().WithModelsDir("/opt/models")
	cfg := b.Config()
	assert.Equal(t, "/opt/models", cfg.ModelsDir)
	assert.Equal(t, filepath.Join("/opt/models", models.Detection), cfg.Detector.ModelPath)
	assert.Equal(t, filepath.Join("/opt/models", models.Classification), cfg.Orientation.ModelPath)
	assert.Equal(t, filepath.Join("/opt/models", models.Recognition), cfg.Recognizer.ModelPath)
	assert.Equal(t, filepath.Join("/opt/models", models.Keys), cfg.Recognizer.KeysPath)

	assert.Equal(t, cfg, b.WithModelsDir("").Config(), "empty dir is ignored")
}

func TestBuilder_WithModelPaths(t *testing.T) {
	b := NewBuilder().
		WithModelsDir("/opt/models").
		WithModelPaths(models.Set{Recognition: "/custom/rec.onnx", Keys: "/custom/keys.txt"})
	cfg := b.Config()
	assert.Equal(t, filepath.Join("/opt/models", models.Detection), cfg.Detector.ModelPath)
	assert.Equal(t, "/custom/rec.onnx", cfg.Recognizer.ModelPath)
	assert.Equal(t, "/custom/keys.txt", cfg.Recognizer.KeysPath)
	assert.Equal(t, models.Set{
		Detection:      filepath.Join("/opt/models", models.Detection),
		Classification: filepath.Join("/opt/models", models.Classification),
		Recognition:    "/custom/rec.onnx",
		Keys:           "/custom/keys.txt",
	}, cfg.ModelSet())
}

func TestBuilder_Setters(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	cfg := NewBuilder().
		WithPadding(10, red).
		WithMaxSideLen(640).
		WithDetectorThresholds(0.4, 0.5).
		WithUnclipRatio(1.6).
		WithAngle(false, false).
		WithThreads(2).
		WithParallelWorkers(3).
		WithGPU(true, 1).
		WithOutput(OutputOptions{Dir: "out", ResultText: true}).
		Config()

	assert.Equal(t, 10, cfg.Padding)
	assert.Equal(t, red, cfg.PadColor)
	assert.Equal(t, 640, cfg.MaxSideLen)
	assert.InDelta(t, 0.4, cfg.Detector.BoxThreshold, 1e-6)
	assert.InDelta(t, 0.5, cfg.Detector.PostProcess.BoxScoreThreshold, 1e-9)
	assert.InDelta(t, 1.6, cfg.Detector.PostProcess.UnclipRatio, 1e-9)
	assert.False(t, cfg.CalcAngle)
	assert.False(t, cfg.MostAngle)
	for _, s := range []onnx.SessionOptions{cfg.Detector.Session, cfg.Orientation.Session, cfg.Recognizer.Session} {
		assert.Equal(t, 2, s.NumThreads)
		assert.True(t, s.GPU.UseGPU)
		assert.Equal(t, 1, s.GPU.DeviceID)
	}
	assert.Equal(t, 3, cfg.Parallel.MaxWorkers)
	assert.Equal(t, "out", cfg.Output.Dir)

	ignored := NewBuilder().WithPadding(-3, red).WithMaxSideLen(-1).WithUnclipRatio(0).WithThreads(0).Config()
	assert.Equal(t, 50, ignored.Padding)
	assert.Equal(t, 1024, ignored.MaxSideLen)
	assert.InDelta(t, 2.0, ignored.Detector.PostProcess.UnclipRatio, 1e-9)
	assert.Equal(t, 4, ignored.Detector.Session.NumThreads)
}

func TestBuilder_Validate_MissingModels(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder().WithModelsDir(dir)
	err := b.Validate()
	require.ErrorIs(t, err, models.ErrModelNotFound)

	_, err = b.Build()
	require.ErrorIs(t, err, models.ErrModelNotFound)
}

func TestBuilder_Validate_ClassifierOnlyWhenNeeded(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{models.Detection, models.Recognition, models.Keys} {
		testutil.WriteFile(t, dir, name, "x")
	}

	require.ErrorIs(t, NewBuilder().WithModelsDir(dir).Validate(), models.ErrModelNotFound)
	require.NoError(t, NewBuilder().WithModelsDir(dir).WithAngle(false, false).Validate())
}

func TestBuilder_BuildWithModels(t *testing.T) {
	p := newFakePipeline(t, newFakeBuilder())
	require.NotNil(t, p.Detector)
	require.NotNil(t, p.Classifier)
	require.NotNil(t, p.Recognizer)
	assert.Equal(t, 2, p.Config().Recognizer.MaxWorkers)
	assert.Equal(t, 2, p.Config().Orientation.MaxWorkers)

	info := p.Info()
	assert.Equal(t, 50, info["padding"])
	assert.Equal(t, true, info["calc_angle"])
	assert.Equal(t, 4, info["recognizer"].(map[string]any)["keys"])
	assert.Equal(t, true, info["classifier"].(map[string]any)["enabled"])

	require.NoError(t, p.Close())
	assert.Nil(t, p.Detector)
	require.NoError(t, p.Close(), "second close is a no-op")
}

func TestBuilder_BuildWithoutClassifier(t *testing.T) {
	p := newFakePipeline(t, newFakeBuilder().WithAngle(false, true))
	assert.Nil(t, p.Classifier)
	assert.Equal(t, false, p.Info()["classifier"].(map[string]any)["enabled"])
}

func TestBuilder_BuildRejectsMissingRecognizer(t *testing.T) {
	_, err := NewBuilder().WithModels(mock.DarkRegionDetector(0.9, 0.1), nil, nil, abc).WithAngle(false, false).Build()
	require.Error(t, err)

	_, err = NewBuilder().WithModels(mock.DarkRegionDetector(0.9, 0.1), nil, mock.Failing(), abc).Build()
	require.Error(t, err, "angle classification needs a model")
}

func TestPipeline_WithRealModels(t *testing.T) {
	dir := testutil.RequireModels(t, models.Detection, models.Classification, models.Recognition, models.Keys)

	p, err := NewBuilder().WithModelsDir(dir).WithThreads(2).Build()
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	cfg := testutil.DefaultTextImageConfig()
	cfg.Lines = []string{"HELLO WORLD", "OCR LITE"}
	res, err := p.Process(t.Context(), testutil.GenerateTextImage(cfg))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Blocks)
	assert.Positive(t, res.DetectionTime)
	assert.GreaterOrEqual(t, res.TotalTime, res.DetectionTime)
}
