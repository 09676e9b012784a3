package pipeline

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"

	"github.com/MeKo-Tech/ocrlite/internal/detector"
	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/orientation"
	"github.com/MeKo-Tech/ocrlite/internal/recognizer"
)

// Config holds configuration for the OCR pipeline and its components.
type Config struct {
	ModelsDir  string
	Padding    int         // border added around the input before detection
	PadColor   color.NRGBA // fill of the border
	BoxColor   color.NRGBA // outline of the boxes on the result image
	MaxSideLen int         // longer side cap before padding; <= 0 keeps the original size
	CalcAngle  bool        // run the angle classifier on every strip
	MostAngle  bool        // replace per-strip angles by one majority decision

	Detector    detector.Config
	Orientation orientation.Config
	Recognizer  recognizer.Config

	Parallel ParallelConfig
	Output   OutputOptions
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir:   models.GetModelsDir(""),
		Padding:     50,
		PadColor:    color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		BoxColor:    color.NRGBA{R: 255, A: 255},
		MaxSideLen:  1024,
		CalcAngle:   true,
		MostAngle:   true,
		Detector:    detector.DefaultConfig(),
		Orientation: orientation.DefaultConfig(),
		Recognizer:  recognizer.DefaultConfig(),
		Parallel:    DefaultParallelConfig(),
	}
}

// Validate checks the numeric settings. Model files are checked by Build.
func (c Config) Validate() error {
	if c.Padding < 0 {
		return fmt.Errorf("padding must not be negative, got %d", c.Padding)
	}
	if c.MaxSideLen < 0 {
		return fmt.Errorf("max side length must not be negative, got %d", c.MaxSideLen)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	return nil
}

// ModelSet returns the model and keys paths currently configured.
func (c Config) ModelSet() models.Set {
	return models.Set{
		Detection:      c.Detector.ModelPath,
		Classification: c.Orientation.ModelPath,
		Recognition:    c.Recognizer.ModelPath,
		Keys:           c.Recognizer.KeysPath,
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	observer Observer

	// preloaded components, mostly for tests and embedding
	detModel onnx.Model
	clsModel onnx.Model
	recModel onnx.Model
	keys     recognizer.Keys
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an explicit configuration.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithModelsDir sets the models directory and points every component at the
// default file names inside it.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir == "" {
		return b
	}
	b.cfg.ModelsDir = dir
	return b.WithModelPaths(models.DefaultSet(dir))
}

// WithModelPaths overrides the individual model and keys paths that are set.
func (b *Builder) WithModelPaths(set models.Set) *Builder {
	set = b.cfg.ModelSet().WithOverrides(set)
	b.cfg.Detector.ModelPath = set.Detection
	b.cfg.Orientation.ModelPath = set.Classification
	b.cfg.Recognizer.ModelPath = set.Recognition
	b.cfg.Recognizer.KeysPath = set.Keys
	return b
}

// WithPadding sets the border width and fill color.
func (b *Builder) WithPadding(padding int, fill color.NRGBA) *Builder {
	if padding >= 0 {
		b.cfg.Padding = padding
	}
	b.cfg.PadColor = fill
	return b
}

// WithBoxColor sets the outline color of the result image.
func (b *Builder) WithBoxColor(c color.NRGBA) *Builder {
	b.cfg.BoxColor = c
	return b
}

// WithMaxSideLen caps the longer side of the detector input.
func (b *Builder) WithMaxSideLen(n int) *Builder {
	if n >= 0 {
		b.cfg.MaxSideLen = n
	}
	return b
}

// WithDetectorThresholds sets the binarization and box score thresholds.
func (b *Builder) WithDetectorThresholds(boxThresh float32, boxScoreThresh float64) *Builder {
	b.cfg.Detector.BoxThreshold = boxThresh
	b.cfg.Detector.PostProcess.BoxScoreThreshold = boxScoreThresh
	return b
}

// WithUnclipRatio sets the box expansion factor.
func (b *Builder) WithUnclipRatio(ratio float64) *Builder {
	if ratio > 0 {
		b.cfg.Detector.PostProcess.UnclipRatio = ratio
	}
	return b
}

// WithAngle configures the angle classifier and majority vote.
func (b *Builder) WithAngle(calc, most bool) *Builder {
	b.cfg.CalcAngle = calc
	b.cfg.MostAngle = most
	return b
}

// WithThreads sets intra-op thread counts for all models (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.Session.NumThreads = n
		b.cfg.Orientation.Session.NumThreads = n
		b.cfg.Recognizer.Session.NumThreads = n
	}
	return b
}

// WithParallelWorkers sets the worker count for per-region stages and batches.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithGPU enables CUDA for all models on the given device.
func (b *Builder) WithGPU(enabled bool, deviceID int) *Builder {
	for _, s := range []*onnx.SessionOptions{&b.cfg.Detector.Session, &b.cfg.Orientation.Session, &b.cfg.Recognizer.Session} {
		s.GPU.UseGPU = enabled
		s.GPU.DeviceID = deviceID
	}
	return b
}

// WithOutput sets the output writers.
func (b *Builder) WithOutput(opts OutputOptions) *Builder {
	b.cfg.Output = opts
	return b
}

// WithObserver registers a hook receiving stage timings.
func (b *Builder) WithObserver(o Observer) *Builder {
	b.observer = o
	return b
}

// WithModels uses already loaded models instead of reading files. cls may be
// nil when angles are not computed.
func (b *Builder) WithModels(det, cls, rec onnx.Model, keys recognizer.Keys) *Builder {
	b.detModel, b.clsModel, b.recModel, b.keys = det, cls, rec, keys
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration and that model files exist.
func (b *Builder) Validate() error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	if b.detModel != nil {
		return nil
	}
	return b.cfg.ModelSet().Validate(b.cfg.CalcAngle)
}

// Pipeline wires together the detector, angle classifier and recognizer.
type Pipeline struct {
	cfg        Config
	observer   Observer
	Detector   *detector.Detector
	Classifier *orientation.Classifier
	Recognizer *recognizer.Recognizer
}

// Build initializes the OCR pipeline components.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	workers := b.cfg.Parallel.MaxWorkers
	b.cfg.Orientation.MaxWorkers = workers
	b.cfg.Recognizer.MaxWorkers = workers

	p := &Pipeline{cfg: b.cfg, observer: b.observer}
	if p.observer == nil {
		p.observer = NopObserver{}
	}
	if err := b.buildComponents(p); err != nil {
		_ = p.Close()
		return nil, err
	}

	slog.Debug("Pipeline ready",
		"detection", b.cfg.Detector.ModelPath,
		"recognition", b.cfg.Recognizer.ModelPath,
		"calc_angle", b.cfg.CalcAngle,
		"most_angle", b.cfg.MostAngle,
		"workers", workers)
	return p, nil
}

func (b *Builder) buildComponents(p *Pipeline) error {
	var err error
	if b.detModel != nil {
		if p.Detector, err = detector.NewWithModel(b.detModel, b.cfg.Detector); err != nil {
			return fmt.Errorf("init detector: %w", err)
		}
		if p.Recognizer, err = recognizer.NewWithModel(b.recModel, b.keys, b.cfg.Recognizer); err != nil {
			return fmt.Errorf("init recognizer: %w", err)
		}
		if b.cfg.CalcAngle {
			if p.Classifier, err = orientation.NewWithModel(b.clsModel, b.cfg.Orientation); err != nil {
				return fmt.Errorf("init angle classifier: %w", err)
			}
		}
		return nil
	}

	if p.Detector, err = detector.NewDetector(b.cfg.Detector); err != nil {
		return fmt.Errorf("init detector: %w", err)
	}
	if p.Recognizer, err = recognizer.NewRecognizer(b.cfg.Recognizer); err != nil {
		return fmt.Errorf("init recognizer: %w", err)
	}
	if b.cfg.CalcAngle {
		if p.Classifier, err = orientation.NewClassifier(b.cfg.Orientation); err != nil {
			return fmt.Errorf("init angle classifier: %w", err)
		}
	}
	return nil
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Classifier != nil {
		errs = append(errs, p.Classifier.Close())
		p.Classifier = nil
	}
	if p.Recognizer != nil {
		errs = append(errs, p.Recognizer.Close())
		p.Recognizer = nil
	}
	if p.Detector != nil {
		errs = append(errs, p.Detector.Close())
		p.Detector = nil
	}
	return errors.Join(errs...)
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]any {
	info := map[string]any{
		"models_dir":   p.cfg.ModelsDir,
		"padding":      p.cfg.Padding,
		"max_side_len": p.cfg.MaxSideLen,
		"calc_angle":   p.cfg.CalcAngle,
		"most_angle":   p.cfg.MostAngle,
		"max_workers":  p.cfg.Parallel.MaxWorkers,
	}
	info["detector"] = map[string]any{
		"model_path":          p.cfg.Detector.ModelPath,
		"box_threshold":       p.cfg.Detector.BoxThreshold,
		"box_score_threshold": p.cfg.Detector.PostProcess.BoxScoreThreshold,
		"unclip_ratio":        p.cfg.Detector.PostProcess.UnclipRatio,
	}
	info["classifier"] = map[string]any{
		"enabled":    p.Classifier != nil,
		"model_path": p.cfg.Orientation.ModelPath,
	}
	rec := map[string]any{
		"model_path": p.cfg.Recognizer.ModelPath,
		"keys_path":  p.cfg.Recognizer.KeysPath,
	}
	if p.Recognizer != nil {
		rec["keys"] = len(p.Recognizer.Keys())
	}
	info["recognizer"] = rec
	return info
}
