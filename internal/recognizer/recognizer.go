// Package recognizer turns rectified text strips into text with a CRNN
// network and greedy CTC decoding.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/common"
	"github.com/MeKo-Tech/ocrlite/internal/mempool"
	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// InputHeight is the strip height the CRNN network expects.
const InputHeight = 32

var (
	meanValues = [3]float32{127.5, 127.5, 127.5}
	normValues = [3]float32{1 / 127.5, 1 / 127.5, 1 / 127.5}
)

// Config holds configuration for the text recognizer.
type Config struct {
	ModelPath  string              // Path to the ONNX CRNN model
	KeysPath   string              // Path to the keys table, one entry per line
	Session    onnx.SessionOptions // runtime threads and GPU
	MaxWorkers int                 // strips recognized in parallel; <= 0 uses all CPUs
}

// DefaultConfig returns a default recognizer configuration.
func DefaultConfig() Config {
	set := models.DefaultSet("")
	return Config{
		ModelPath: set.Recognition,
		KeysPath:  set.Keys,
		Session:   onnx.DefaultSessionOptions(),
	}
}

// Recognizer runs the CRNN network.
type Recognizer struct {
	config Config
	model  onnx.Model
	keys   Keys
	mu     sync.RWMutex
}

// NewRecognizer loads the keys table and the model.
func NewRecognizer(config Config) (*Recognizer, error) {
	if err := models.ValidateModelExists(config.KeysPath); err != nil {
		return nil, err
	}
	if err := models.ValidateModelExists(config.ModelPath); err != nil {
		return nil, err
	}
	keys, err := LoadKeys(config.KeysPath)
	if err != nil {
		return nil, err
	}
	model, err := onnx.LoadModel(config.ModelPath, config.Session)
	if err != nil {
		return nil, fmt.Errorf("load recognition model: %w", err)
	}
	slog.Debug("Recognizer ready", "model_path", config.ModelPath, "keys", len(keys))
	return &Recognizer{config: config, model: model, keys: keys}, nil
}

// NewWithModel builds a recognizer around a loaded model and keys table.
func NewWithModel(model onnx.Model, keys Keys, config Config) (*Recognizer, error) {
	if model == nil {
		return nil, errors.New("recognition model is nil")
	}
	if len(keys) == 0 {
		return nil, errors.New("keys table is empty")
	}
	return &Recognizer{config: config, model: model, keys: keys}, nil
}

// Config returns the recognizer configuration.
func (r *Recognizer) Config() Config { return r.config }

// Keys returns the keys table.
func (r *Recognizer) Keys() Keys { return r.keys }

// Close releases the model.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return nil
	}
	err := r.model.Close()
	r.model = nil
	return err
}

// RecognizeAll recognizes every strip and returns the lines in input order.
func (r *Recognizer) RecognizeAll(ctx context.Context, images []image.Image) ([]TextLine, error) {
	return common.MapOrdered(ctx, images, r.config.MaxWorkers,
		func(_ context.Context, _ int, img image.Image) (TextLine, error) {
			return r.Recognize(img)
		})
}

// Recognize reads the text of a single strip.
func (r *Recognizer) Recognize(img image.Image) (TextLine, error) {
	if img == nil {
		return TextLine{}, errors.New("input image is nil")
	}
	start := time.Now()

	resized, err := ResizeToHeight(img, InputHeight)
	if err != nil {
		return TextLine{}, err
	}
	data, w, h, err := utils.NormalizeImage(resized, meanValues, normValues, utils.BGR)
	if err != nil {
		return TextLine{}, err
	}
	defer mempool.PutFloat32(data)

	in, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return TextLine{}, err
	}

	r.mu.RLock()
	model := r.model
	r.mu.RUnlock()
	if model == nil {
		return TextLine{}, errors.New("recognizer is closed")
	}

	out, err := model.Run(in)
	if err != nil {
		return TextLine{}, fmt.Errorf("recognition inference: %w", err)
	}
	steps, classes, err := SequenceDims(out.Shape)
	if err != nil {
		return TextLine{}, err
	}

	line := Decode(out.Data, steps, classes, r.keys)
	line.Elapsed = time.Since(start)
	return line, nil
}

// ResizeToHeight scales img to height h keeping its aspect ratio; the width
// is truncated and at least one pixel.
func ResizeToHeight(img image.Image, h int) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, &utils.ImageProcessingError{Operation: "resize", Err: errors.New("empty image")}
	}
	w := max(int(float64(b.Dx())*float64(h)/float64(b.Dy())), 1)
	return utils.Resize(img, w, h)
}

// SequenceDims returns the number of time steps and classes of a recognition
// output. [T, 1, C] is read directly; other layouts use the last two
// dimensions greater than one, in order.
func SequenceDims(shape []int64) (int, int, error) {
	if len(shape) == 3 && shape[1] == 1 {
		return int(shape[0]), int(shape[2]), nil
	}
	var dims []int
	for _, d := range shape {
		if d > 1 {
			dims = append(dims, int(d))
		}
	}
	switch len(dims) {
	case 0:
		return 0, 0, fmt.Errorf("unexpected recognition output shape %v", shape)
	case 1:
		// a single step or a single class
		if len(shape) > 0 && shape[len(shape)-1] > 1 {
			return 1, dims[0], nil
		}
		return dims[0], 1, nil
	}
	return dims[len(dims)-2], dims[len(dims)-1], nil
}
