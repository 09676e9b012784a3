package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/common"
	"github.com/MeKo-Tech/ocrlite/internal/detector"
	"github.com/MeKo-Tech/ocrlite/internal/orientation"
	"github.com/MeKo-Tech/ocrlite/internal/recognizer"
	"github.com/MeKo-Tech/ocrlite/internal/rectify"
	"github.com/MeKo-Tech/ocrlite/internal/scale"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
	"github.com/google/uuid"
)

// artifacts are the intermediate strips of one run, kept for the output writers.
type artifacts struct {
	strips []image.Image // rectified, before angle correction
	parts  []image.Image // fed to recognition
}

// Process runs the full OCR pipeline on img. Output files, when enabled, are
// named after a random identifier.
func (p *Pipeline) Process(ctx context.Context, img image.Image) (*Result, error) {
	return p.processNamed(ctx, img, "image_"+uuid.NewString())
}

// ProcessFile loads the image at path and runs the pipeline on it. Output
// files are named after the file's base name.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Result, error) {
	img, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	return p.processNamed(ctx, img, strings.TrimSuffix(base, filepath.Ext(base)))
}

func (p *Pipeline) processNamed(ctx context.Context, img image.Image, name string) (*Result, error) {
	res, art, err := p.run(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Output.write(name, res, art); err != nil {
		return res, fmt.Errorf("write output: %w", err)
	}
	return res, nil
}

// run performs the stages for a single image.
func (p *Pipeline) run(ctx context.Context, img image.Image) (*Result, *artifacts, error) {
	if p == nil || p.Detector == nil || p.Recognizer == nil {
		return nil, nil, errors.New("pipeline not initialized")
	}
	if img == nil {
		return nil, nil, errors.New("input image is nil")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, nil, &utils.ImageProcessingError{Operation: "process", Err: errors.New("empty image")}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	pad := p.cfg.Padding
	padded := utils.Pad(img, pad, p.cfg.PadColor)
	pb := padded.Bounds()
	sp := scale.Plan(pb.Dx(), pb.Dy(), scale.TargetSide(bounds.Dx(), bounds.Dy(), p.cfg.MaxSideLen, pad))
	slog.Debug("Starting image processing",
		"width", bounds.Dx(), "height", bounds.Dy(), "padding", pad, "scale", sp.String())

	start := time.Now()
	det, err := p.Detector.Detect(padded, sp)
	if err != nil {
		return nil, nil, fmt.Errorf("detection: %w", err)
	}
	p.observer.ObserveStage(StageDetection, det.Elapsed)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	stageStart := time.Now()
	boxes, strips, err := p.rectifyAll(ctx, padded, det.Boxes)
	if err != nil {
		return nil, nil, err
	}
	p.observer.ObserveStage(StageRectify, time.Since(stageStart))
	p.observer.ObserveRegions(len(boxes))

	stageStart = time.Now()
	angles, err := p.classify(ctx, strips)
	if err != nil {
		return nil, nil, fmt.Errorf("orientation: %w", err)
	}
	p.observer.ObserveStage(StageOrientation, time.Since(stageStart))

	parts := make([]image.Image, len(strips))
	for i, strip := range strips {
		parts[i] = strip
		if angles[i].NeedsRotation() {
			parts[i] = utils.Rotate180(strip)
		}
	}

	stageStart = time.Now()
	lines, err := p.recognize(ctx, parts)
	if err != nil {
		return nil, nil, fmt.Errorf("recognition: %w", err)
	}
	p.observer.ObserveStage(StageRecognition, time.Since(stageStart))

	res := assemble(boxes, angles, lines, pad)
	res.DetectionTime = det.Elapsed
	res.Image = annotate(padded, boxes, bounds.Size(), pad, p.cfg.BoxColor)
	res.TotalTime = time.Since(start)
	p.observer.ObserveStage(StageTotal, res.TotalTime)

	slog.Debug("Image processed",
		"regions", len(res.Blocks),
		"det_ms", common.Millis(res.DetectionTime),
		"full_ms", common.Millis(res.TotalTime))
	return res, &artifacts{strips: strips, parts: parts}, nil
}

// rectifyAll cuts every box out of src. Boxes whose quadrilateral cannot be
// rectified are dropped together with their strip.
func (p *Pipeline) rectifyAll(ctx context.Context, src image.Image, boxes []detector.TextBox) ([]detector.TextBox, []image.Image, error) {
	if len(boxes) == 0 {
		return nil, nil, nil
	}
	crops, err := common.MapOrdered(ctx, boxes, p.cfg.Parallel.MaxWorkers,
		func(_ context.Context, i int, box detector.TextBox) (image.Image, error) {
			strip, err := rectify.Rectify(src, box.Points)
			if errors.Is(err, rectify.ErrDegenerateRegion) {
				slog.Warn("Skipping degenerate region", "region", i, "points", box.Points)
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return strip, nil
		})
	if err != nil {
		return nil, nil, fmt.Errorf("rectify: %w", err)
	}

	kept := make([]detector.TextBox, 0, len(boxes))
	strips := make([]image.Image, 0, len(boxes))
	for i, c := range crops {
		if c == nil {
			continue
		}
		kept = append(kept, boxes[i])
		strips = append(strips, c)
	}
	return kept, strips, nil
}

func (p *Pipeline) classify(ctx context.Context, strips []image.Image) ([]orientation.Angle, error) {
	if p.Classifier == nil || !p.cfg.CalcAngle {
		angles := make([]orientation.Angle, len(strips))
		for i := range angles {
			angles[i] = orientation.Angle{Index: orientation.NotComputed}
		}
		return angles, ctx.Err()
	}
	return p.Classifier.Classify(ctx, strips, true, p.cfg.MostAngle)
}

func (p *Pipeline) recognize(ctx context.Context, parts []image.Image) ([]recognizer.TextLine, error) {
	if len(parts) == 0 {
		return nil, ctx.Err()
	}
	return p.Recognizer.RecognizeAll(ctx, parts)
}

// assemble builds the text blocks in input coordinates.
func assemble(boxes []detector.TextBox, angles []orientation.Angle, lines []recognizer.TextLine, pad int) *Result {
	res := &Result{Blocks: make([]TextBlock, len(lines))}
	var text strings.Builder
	for i, line := range lines {
		box := boxes[i].Translate(-pad, -pad)
		res.Blocks[i] = TextBlock{
			Points:     box.Points,
			BoxScore:   box.Score,
			AngleIndex: angles[i].Index,
			AngleScore: angles[i].Score,
			AngleTime:  angles[i].Elapsed,
			Text:       line.Text,
			CharScores: line.CharScores,
			CrnnTime:   line.Elapsed,
			BlockTime:  angles[i].Elapsed + line.Elapsed,
		}
		text.WriteString(line.Text)
		text.WriteByte('\n')
	}
	res.Text = text.String()
	return res
}
