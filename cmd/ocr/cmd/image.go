package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/MeKo-Tech/ocrlite/internal/common"
	"github.com/MeKo-Tech/ocrlite/internal/config"
	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
	"github.com/spf13/cobra"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
)

var validFormats = []string{outputFormatText, outputFormatJSON, outputFormatYAML}

func newImageCommand(a *app) *cobra.Command {
	var imagePath string
	var progress bool

	cmd := &cobra.Command{
		Use:   "image [files or directories...]",
		Short: "Process images for OCR text detection and recognition",
		Long: `Process one or more image files to extract text using OCR. A directory
processes every supported image inside it in name order.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  ocr image --image-path photo.jpg
  ocr image scans/ --format json
  ocr image page.png --output-dir out --output-result-image --output-result-text`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if imagePath != "" {
				args = append([]string{imagePath}, args...)
			}
			if len(args) == 0 {
				return errors.New("no input files provided (use --image-path or pass files as arguments)")
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			format := strings.ToLower(cfg.Output.Format)
			if !slices.Contains(validFormats, format) {
				return fmt.Errorf("invalid output format: %s (must be one of: %s)", cfg.Output.Format, strings.Join(validFormats, ", "))
			}
			paths, err := expandInputs(args)
			if err != nil {
				return err
			}

			pc, err := imagePipelineConfig(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if progress {
				pc.Parallel.Progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "ocr ")
			} else if len(paths) > 1 {
				pc.Parallel.Progress = pipeline.NewLogProgressCallback(slog.Default(), slog.LevelDebug, 10)
			}
			p, err := a.build(pc)
			if err != nil {
				return fmt.Errorf("failed to initialize pipeline: %w", err)
			}
			defer func() { _ = p.Close() }()

			return runImages(cmd.Context(), cmd.OutOrStdout(), p, paths, format, cfg.Output.Console)
		},
	}

	f := cmd.Flags()
	d := config.DefaultConfig()
	f.StringVar(&imagePath, "image-path", "", "image file or directory to process")
	f.BoolVar(&progress, "progress", false, "draw a progress bar on stderr")
	addModelFlags(cmd)
	addPipelineFlags(cmd, d)
	f.String("output-dir", d.Output.Dir, "directory for result files (default next to the input)")
	f.Bool("output-console", d.Output.Console, "print the recognized text of every image while processing")
	f.Bool("output-part-image", d.Output.PartImages, "write every detected region and its rectified strip")
	f.Bool("output-result-image", d.Output.ResultImage, "write the input annotated with the detected boxes")
	f.Bool("output-result-text", d.Output.ResultText, "write the recognized text")
	f.Bool("output-debug-images", d.Output.DebugImages, "write the orientation and recognition inputs")
	f.String("box-color", d.Output.BoxColor, "box color on the result image (hex)")
	f.StringP("format", "f", d.Output.Format, "output format (text, json, yaml)")
	f.Int("workers", d.Batch.Workers, "images processed in parallel")
	f.Bool("continue-on-error", d.Batch.ContinueOnError, "keep processing the remaining images after a failure")
	addGPUFlags(cmd, d)

	bindFlags(cmd, map[string]string{
		"output-dir":          "output.dir",
		"output-console":      "output.console",
		"output-part-image":   "output.part_images",
		"output-result-image": "output.result_image",
		"output-result-text":  "output.result_text",
		"output-debug-images": "output.debug_images",
		"box-color":           "output.box_color",
		"format":              "output.format",
		"workers":             "batch.workers",
		"continue-on-error":   "batch.continue_on_error",
	})
	return cmd
}

// addModelFlags registers the flags naming the model and keys files.
func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("det-path", "", "detection model (default <models-dir>/det.onnx)")
	f.String("cls-path", "", "angle classifier model (default <models-dir>/cls.onnx)")
	f.String("rec-path", "", "recognition model (default <models-dir>/rec.onnx)")
	f.String("keys-path", "", "recognition keys (default <models-dir>/keys.txt)")
	bindFlags(cmd, map[string]string{
		"det-path":  "models.det_path",
		"cls-path":  "models.cls_path",
		"rec-path":  "models.rec_path",
		"keys-path": "models.keys_path",
	})
}

// addPipelineFlags registers the detection and angle flags shared by the
// commands that run the pipeline.
func addPipelineFlags(cmd *cobra.Command, d config.Config) {
	f := cmd.Flags()
	p := d.Pipeline
	f.Int("num-threads", p.NumThreads, "intra-op threads per model")
	f.Int("padding", p.Padding, "border added around the image before detection")
	f.String("pad-color", p.PadColor, "fill color of the border (hex)")
	f.Int("max-side-len", p.MaxSideLen, "longer side cap before detection, 0 keeps the original size")
	f.Float64("box-score-threshold", p.BoxScoreThreshold, "minimum mean probability inside a box")
	f.Float32("box-threshold", p.BoxThreshold, "probability map binarization threshold")
	f.Float64("unclip-ratio", p.UnclipRatio, "box expansion ratio")
	f.Bool("cal-angle", p.CalcAngle, "run the angle classifier on every text line")
	f.Bool("cal-most-angle", p.MostAngle, "use the majority angle for every text line")
	f.Int("max-workers", p.MaxWorkers, "workers for per-region stages, 0 uses every CPU")
	bindFlags(cmd, map[string]string{
		"num-threads":         "pipeline.num_threads",
		"padding":             "pipeline.padding",
		"pad-color":           "pipeline.pad_color",
		"max-side-len":        "pipeline.max_side_len",
		"box-score-threshold": "pipeline.box_score_threshold",
		"box-threshold":       "pipeline.box_threshold",
		"unclip-ratio":        "pipeline.unclip_ratio",
		"cal-angle":           "pipeline.calc_angle",
		"cal-most-angle":      "pipeline.most_angle",
		"max-workers":         "pipeline.max_workers",
	})
}

func addGPUFlags(cmd *cobra.Command, d config.Config) {
	f := cmd.Flags()
	f.Bool("gpu", d.GPU.Enabled, "run the models on the CUDA execution provider")
	f.Int("gpu-device", d.GPU.Device, "CUDA device id")
	f.String("gpu-mem-limit", d.GPU.MemoryLimit, "GPU memory limit (auto, 0 or sizes like 512MB, 2GB)")
	bindFlags(cmd, map[string]string{
		"gpu":           "gpu.enabled",
		"gpu-device":    "gpu.device",
		"gpu-mem-limit": "gpu.memory_limit",
	})
}

// expandInputs replaces directories by the images they contain and checks
// that every file exists.
func expandInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input not found: %s", arg)
		}
		if !fi.IsDir() {
			paths = append(paths, arg)
			continue
		}
		images, err := utils.ListImages(arg)
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			slog.Warn("No supported images in directory", "dir", arg)
		}
		paths = append(paths, images...)
	}
	if len(paths) == 0 {
		return nil, errors.New("no supported images found")
	}
	return paths, nil
}

// imagePipelineConfig converts cfg and attaches the console writer when the
// recognized text is streamed while processing.
func imagePipelineConfig(cfg *config.Config, console io.Writer) (pipeline.Config, error) {
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		return pipeline.Config{}, err
	}
	if cfg.Output.Console {
		pc.Output.Console = console
	}
	return pc, nil
}

// runImages processes paths and prints the results in format. In text mode
// every image gets its timing line, followed by the summed times.
func runImages(ctx context.Context, w io.Writer, p *pipeline.Pipeline, paths []string, format string, streamed bool) error {
	results, err := p.ProcessFiles(ctx, paths)
	if err != nil && results == nil {
		return err
	}

	var prof pipeline.Profiler
	for _, r := range results {
		if r.Err != nil {
			slog.Error("Failed to process image", "path", r.Path, "error", r.Err)
		}
		prof.Record(r.Result)
	}

	switch format {
	case outputFormatJSON:
		var out string
		var jerr error
		if len(results) == 1 && results[0].Result != nil {
			out, jerr = pipeline.ToJSON(results[0].Path, results[0].Result)
		} else {
			out, jerr = pipeline.ToJSONBatch(results)
		}
		if jerr != nil {
			return jerr
		}
		if _, werr := fmt.Fprintln(w, out); werr != nil {
			return werr
		}
	case outputFormatYAML:
		if werr := writeYAML(w, results); werr != nil {
			return werr
		}
	default:
		if werr := writeText(w, results, &prof, streamed); werr != nil {
			return werr
		}
	}

	slog.Debug("Processing finished", "stats", prof.Snapshot())
	if err != nil {
		return err
	}
	if n := failedCount(results); n > 0 {
		return fmt.Errorf("%d of %d images failed", n, len(results))
	}
	return nil
}

func writeYAML(w io.Writer, results []pipeline.FileResult) error {
	first := true
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		out, err := pipeline.ToYAML(r.Path, r.Result)
		if err != nil {
			return err
		}
		if !first {
			if _, err := fmt.Fprintln(w, "---"); err != nil {
				return err
			}
		}
		first = false
		if _, err := fmt.Fprint(w, out); err != nil {
			return err
		}
	}
	return nil
}

func writeText(w io.Writer, results []pipeline.FileResult, prof *pipeline.Profiler, streamed bool) error {
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		var out string
		if streamed {
			// the text went to the console already
			out = fmt.Sprintf("det_time: %.3f full_time: %.3f\n",
				common.Millis(r.Result.DetectionTime), common.Millis(r.Result.TotalTime))
		} else {
			var err error
			if out, err = pipeline.ToPlainText(r.Result); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprint(w, out); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "sum_det_time: %.3f sum_full_time: %.3f\n",
		common.Millis(prof.DetectionTime()), common.Millis(prof.TotalTime()))
	return err
}

func failedCount(results []pipeline.FileResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
