// Package orientation decides per text strip whether it is upside down and
// optionally forces one decision on every strip of an image.
package orientation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/common"
	"github.com/MeKo-Tech/ocrlite/internal/mempool"
	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// Classifier input size.
const (
	InputWidth  = 192
	InputHeight = 64
)

// Angle indexes.
const (
	NotComputed = -1
	Rotated     = 0 // upside down, needs a 180 degree turn
	Upright     = 1
)

// emptyScore is reported when the model returns no scores.
const emptyScore = -1000

var (
	meanValues = [3]float32{127.5, 127.5, 127.5}
	normValues = [3]float32{1 / 127.5, 1 / 127.5, 1 / 127.5}
)

// ErrNonBinaryVote is returned when a majority vote meets an index other
// than 0 or 1, or a model with other than two classes.
var ErrNonBinaryVote = errors.New("majority vote needs binary angle indexes")

// Angle is the orientation decision for one strip.
type Angle struct {
	Index   int           `json:"index" yaml:"index"`
	Score   float64       `json:"score" yaml:"score"`
	Elapsed time.Duration `json:"-" yaml:"-"`
}

// NeedsRotation reports whether the strip must be turned 180 degrees.
func (a Angle) NeedsRotation() bool { return a.Index == Rotated }

// Config configures the classifier.
type Config struct {
	ModelPath  string
	Session    onnx.SessionOptions
	MaxWorkers int // strips classified in parallel; <= 0 uses all CPUs
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath: models.DefaultSet("").Classification,
		Session:   onnx.DefaultSessionOptions(),
	}
}

// Classifier runs the angle network over text strips.
type Classifier struct {
	config Config
	model  onnx.Model
	mu     sync.RWMutex
}

// NewClassifier loads the model named by cfg.ModelPath.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := models.ValidateModelExists(cfg.ModelPath); err != nil {
		return nil, err
	}
	model, err := onnx.LoadModel(cfg.ModelPath, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("load angle model: %w", err)
	}
	slog.Debug("Angle classifier ready", "model_path", cfg.ModelPath)
	return &Classifier{config: cfg, model: model}, nil
}

// NewWithModel wraps an already loaded model.
func NewWithModel(model onnx.Model, cfg Config) (*Classifier, error) {
	if model == nil {
		return nil, errors.New("angle model is nil")
	}
	return &Classifier{config: cfg, model: model}, nil
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config { return c.config }

// Close releases the model.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == nil {
		return nil
	}
	err := c.model.Close()
	c.model = nil
	return err
}

// Classify returns one Angle per image, in input order. Without calcAngle
// the model is not run and every Angle is NotComputed. With mostAngle the
// per-strip decisions are replaced by the result of Vote.
func (c *Classifier) Classify(ctx context.Context, images []image.Image, calcAngle, mostAngle bool) ([]Angle, error) {
	if !calcAngle {
		angles := make([]Angle, len(images))
		for i := range angles {
			angles[i] = Angle{Index: NotComputed}
		}
		return angles, ctx.Err()
	}

	angles, err := common.MapOrdered(ctx, images, c.config.MaxWorkers,
		func(_ context.Context, _ int, img image.Image) (Angle, error) {
			return c.classify(img, mostAngle)
		})
	if err != nil {
		return nil, err
	}

	if mostAngle {
		return Vote(angles)
	}
	return angles, nil
}

func (c *Classifier) classify(img image.Image, binary bool) (Angle, error) {
	start := time.Now()

	adjusted := AdjustSize(img, InputWidth, InputHeight)
	data, w, h, err := utils.NormalizeImage(adjusted, meanValues, normValues, utils.BGR)
	if err != nil {
		return Angle{}, err
	}
	defer mempool.PutFloat32(data)

	in, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return Angle{}, err
	}

	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()
	if model == nil {
		return Angle{}, errors.New("angle classifier is closed")
	}

	out, err := model.Run(in)
	if err != nil {
		return Angle{}, fmt.Errorf("angle inference: %w", err)
	}
	if binary && len(out.Data) != 2 {
		return Angle{}, fmt.Errorf("%w: model returned %d classes", ErrNonBinaryVote, len(out.Data))
	}

	angle := ScoreToAngle(out.Data)
	angle.Elapsed = time.Since(start)
	return angle, nil
}

// AdjustSize scales img to height h keeping its aspect ratio and places it at
// the left edge of a white w x h canvas. Wider strips are cut off on the right.
func AdjustSize(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Empty() {
		return utils.PasteOnCanvas(image.NewNRGBA(image.Rectangle{}), w, h, color.White)
	}
	scaledW := max(int(float64(b.Dx())*float64(h)/float64(b.Dy())), 1)
	resized, err := utils.Resize(img, scaledW, h)
	if err != nil {
		return utils.PasteOnCanvas(image.NewNRGBA(image.Rectangle{}), w, h, color.White)
	}
	return utils.PasteOnCanvas(resized, w, h, color.White)
}

// ScoreToAngle picks the index of the highest raw score; the first of equal
// maxima wins. An empty output yields index 0 with score -1000.
func ScoreToAngle(scores []float32) Angle {
	if len(scores) == 0 {
		return Angle{Index: 0, Score: emptyScore}
	}
	best := 0
	for i, s := range scores[1:] {
		if s > scores[best] {
			best = i + 1
		}
	}
	return Angle{Index: best, Score: float64(scores[best])}
}

// Vote replaces every index by one decision for the whole image. When the sum
// of the indexes is below half the count (integer division) every strip takes
// the first strip's index, otherwise the second strip's. A single strip keeps
// its own index. Scores and timings are kept.
func Vote(angles []Angle) ([]Angle, error) {
	out := make([]Angle, len(angles))
	copy(out, angles)
	if len(out) < 2 {
		for _, a := range out {
			if a.Index != Rotated && a.Index != Upright {
				return nil, fmt.Errorf("%w: index %d", ErrNonBinaryVote, a.Index)
			}
		}
		return out, nil
	}

	sum := 0
	for _, a := range out {
		if a.Index != Rotated && a.Index != Upright {
			return nil, fmt.Errorf("%w: index %d", ErrNonBinaryVote, a.Index)
		}
		sum += a.Index
	}

	most := angles[1].Index
	if sum < len(out)/2 {
		most = angles[0].Index
	}
	for i := range out {
		out[i].Index = most
	}
	return out, nil
}
