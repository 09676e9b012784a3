package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/mempool"
	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/scale"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// DB network normalization, ImageNet statistics scaled to 0..255, applied in
// BGR plane order.
var (
	meanValues = [3]float32{0.485 * 255, 0.456 * 255, 0.406 * 255}
	normValues = [3]float32{1 / 0.229 / 255, 1 / 0.224 / 255, 1 / 0.225 / 255}
)

// Config holds configuration for the text detector.
type Config struct {
	ModelPath    string              // Path to the ONNX detection model
	BoxThreshold float32             // binarization threshold, strict greater-than (default: 0.3)
	PostProcess  PostProcessOptions  // region extraction settings
	Session      onnx.SessionOptions // runtime threads and GPU
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:    models.DefaultSet("").Detection,
		BoxThreshold: 0.3,
		PostProcess:  DefaultPostProcessOptions(),
		Session:      onnx.DefaultSessionOptions(),
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.BoxThreshold < 0 || c.BoxThreshold >= 1 {
		return fmt.Errorf("box threshold must be in [0,1), got %v", c.BoxThreshold)
	}
	if c.PostProcess.BoxScoreThreshold < 0 || c.PostProcess.BoxScoreThreshold > 1 {
		return fmt.Errorf("box score threshold must be in [0,1], got %v", c.PostProcess.BoxScoreThreshold)
	}
	if c.PostProcess.UnclipRatio <= 0 {
		return fmt.Errorf("unclip ratio must be positive, got %v", c.PostProcess.UnclipRatio)
	}
	if c.PostProcess.MinSide < 0 {
		return fmt.Errorf("min side must not be negative, got %v", c.PostProcess.MinSide)
	}
	return nil
}

// Detection is the outcome of running the detector on one image.
type Detection struct {
	Boxes   []TextBox
	Scale   scale.Param
	Elapsed time.Duration
}

// Detector runs the DB text detection network and post-processes its output.
type Detector struct {
	config Config
	model  onnx.Model
	mu     sync.RWMutex
}

// NewDetector loads the model named by config.ModelPath.
func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := models.ValidateModelExists(config.ModelPath); err != nil {
		return nil, err
	}
	slog.Debug("Initializing detector",
		"model_path", config.ModelPath,
		"box_threshold", config.BoxThreshold,
		"box_score_threshold", config.PostProcess.BoxScoreThreshold,
		"unclip_ratio", config.PostProcess.UnclipRatio)

	model, err := onnx.LoadModel(config.ModelPath, config.Session)
	if err != nil {
		return nil, fmt.Errorf("load detection model: %w", err)
	}
	return &Detector{config: config, model: model}, nil
}

// NewWithModel builds a detector around an already loaded model.
func NewWithModel(model onnx.Model, config Config) (*Detector, error) {
	if model == nil {
		return nil, errors.New("detection model is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{config: config, model: model}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.config }

// Close releases the model.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.model == nil {
		return nil
	}
	err := d.model.Close()
	d.model = nil
	return err
}

// Detect finds text regions in img, resized according to sp. Boxes are in
// img's coordinate frame (origin at its top-left corner).
func (d *Detector) Detect(img image.Image, sp scale.Param) (*Detection, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	start := time.Now()

	prob, sp, err := d.probabilityMap(img, sp)
	if err != nil {
		return nil, err
	}

	bin, err := Binarize(prob, d.config.BoxThreshold)
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}
	defer bin.Release()

	boxes := ExtractRegions(prob, bin, sp, d.config.PostProcess)
	return &Detection{Boxes: boxes, Scale: sp, Elapsed: time.Since(start)}, nil
}

// probabilityMap resizes and normalizes img, runs the network and returns its
// output map. When the map size differs from the planned size the returned
// plan is adjusted so that coordinates still map back correctly.
func (d *Detector) probabilityMap(img image.Image, sp scale.Param) (ProbabilityMap, scale.Param, error) {
	resized, err := utils.Resize(img, sp.DstWidth, sp.DstHeight)
	if err != nil {
		return ProbabilityMap{}, sp, err
	}
	data, w, h, err := utils.NormalizeImage(resized, meanValues, normValues, utils.BGR)
	if err != nil {
		return ProbabilityMap{}, sp, err
	}
	defer mempool.PutFloat32(data)

	in, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return ProbabilityMap{}, sp, fmt.Errorf("failed to create tensor: %w", err)
	}

	d.mu.RLock()
	model := d.model
	d.mu.RUnlock()
	if model == nil {
		return ProbabilityMap{}, sp, errors.New("detector is closed")
	}

	out, err := model.Run(in)
	if err != nil {
		return ProbabilityMap{}, sp, fmt.Errorf("detection inference: %w", err)
	}
	if len(out.Shape) < 2 {
		return ProbabilityMap{}, sp, fmt.Errorf("unexpected detection output shape %v", out.Shape)
	}
	mapH := int(out.Shape[len(out.Shape)-2])
	mapW := int(out.Shape[len(out.Shape)-1])
	prob, err := NewProbabilityMap(out.Data, mapW, mapH)
	if err != nil {
		return ProbabilityMap{}, sp, fmt.Errorf("detection output %v: %w", out.Shape, err)
	}

	if mapW != sp.DstWidth || mapH != sp.DstHeight {
		sp.DstWidth, sp.DstHeight = mapW, mapH
		sp.RatioW = float64(mapW) / float64(sp.SrcWidth)
		sp.RatioH = float64(mapH) / float64(sp.SrcHeight)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		lo, hi, mean := onnx.TensorStats(prob.Data)
		slog.Debug("Detection map", "width", mapW, "height", mapH, "min", lo, "max", hi, "mean", mean)
	}
	return prob, sp, nil
}
