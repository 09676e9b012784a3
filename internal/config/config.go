// Package config loads ocrlite settings from files, the environment and
// command-line flags and turns them into a pipeline configuration.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// DefaultConfig returns a configuration with the pipeline's defaults.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		LogFormat: "text",
		Pipeline: PipelineConfig{
			Padding:           p.Padding,
			PadColor:          "#FFFFFF",
			MaxSideLen:        p.MaxSideLen,
			BoxScoreThreshold: p.Detector.PostProcess.BoxScoreThreshold,
			BoxThreshold:      p.Detector.BoxThreshold,
			UnclipRatio:       p.Detector.PostProcess.UnclipRatio,
			CalcAngle:         p.CalcAngle,
			MostAngle:         p.MostAngle,
			NumThreads:        p.Detector.Session.NumThreads,
			MaxWorkers:        0,
		},
		Output: OutputConfig{
			Format:   "text",
			BoxColor: "#FF0000",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
		},
		Batch: BatchConfig{
			Workers: 1,
		},
		GPU: GPUConfig{
			MemoryLimit: "auto",
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	validLogFormats := []string{"text", "json"}
	if c.LogFormat != "" && !slices.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))
	}

	validFormats := []string{"text", "json", "yaml"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	p := c.Pipeline
	if err := validateThreshold(p.BoxScoreThreshold, "pipeline.box_score_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(float64(p.BoxThreshold), "pipeline.box_threshold"); err != nil {
		return err
	}
	if p.UnclipRatio <= 0 {
		return fmt.Errorf("invalid pipeline.unclip_ratio: %.2f (must be positive)", p.UnclipRatio)
	}
	if p.Padding < 0 {
		return fmt.Errorf("invalid pipeline.padding: %d (must not be negative)", p.Padding)
	}
	if p.MaxSideLen < 0 {
		return fmt.Errorf("invalid pipeline.max_side_len: %d (must not be negative)", p.MaxSideLen)
	}
	if p.NumThreads < 0 {
		return fmt.Errorf("invalid pipeline.num_threads: %d (must not be negative)", p.NumThreads)
	}
	if p.MaxWorkers < 0 {
		return fmt.Errorf("invalid pipeline.max_workers: %d (must not be negative)", p.MaxWorkers)
	}
	if _, err := utils.ParseHexColor(p.PadColor); err != nil {
		return fmt.Errorf("invalid pipeline.pad_color: %w", err)
	}
	if _, err := utils.ParseHexColor(c.Output.BoxColor); err != nil {
		return fmt.Errorf("invalid output.box_color: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.MaxUploadMBPerDay < 0 {
		return errors.New("invalid server rate limits (must not be negative)")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration. The
// console writer is left unset; callers attach their own.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	padColor, err := utils.ParseHexColor(c.Pipeline.PadColor)
	if err != nil {
		return pipeline.Config{}, err
	}
	boxColor, err := utils.ParseHexColor(c.Output.BoxColor)
	if err != nil {
		return pipeline.Config{}, err
	}
	memLimit, err := parseMemoryLimit(c.GPU.MemoryLimit)
	if err != nil {
		return pipeline.Config{}, err
	}

	p := c.Pipeline
	cfg := pipeline.NewBuilder().
		WithModelsDir(models.GetModelsDir(c.ModelsDir)).
		WithModelPaths(models.Set{
			Detection:      c.Models.DetPath,
			Classification: c.Models.ClsPath,
			Recognition:    c.Models.RecPath,
			Keys:           c.Models.KeysPath,
		}).
		WithPadding(p.Padding, padColor).
		WithBoxColor(boxColor).
		WithMaxSideLen(p.MaxSideLen).
		WithDetectorThresholds(p.BoxThreshold, p.BoxScoreThreshold).
		WithUnclipRatio(p.UnclipRatio).
		WithAngle(p.CalcAngle, p.MostAngle).
		WithThreads(p.NumThreads).
		WithParallelWorkers(p.MaxWorkers).
		WithGPU(c.GPU.Enabled, c.GPU.Device).
		WithOutput(pipeline.OutputOptions{
			Dir:         c.Output.Dir,
			PartImages:  c.Output.PartImages,
			ResultImage: c.Output.ResultImage,
			ResultText:  c.Output.ResultText,
			DebugImages: c.Output.DebugImages,
		}).
		Config()

	cfg.Detector.Session.GPU.GPUMemLimit = memLimit
	cfg.Orientation.Session.GPU.GPUMemLimit = memLimit
	cfg.Recognizer.Session.GPU.GPUMemLimit = memLimit
	cfg.Parallel.BatchWorkers = c.Batch.Workers
	cfg.Parallel.ContinueOnError = c.Batch.ContinueOnError
	return cfg, nil
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

var memoryUnits = []struct {
	suffix string
	factor uint64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseMemoryLimit converts a GPU memory limit such as "1GB" or "512MB" to
// bytes. "auto" and the empty string mean no limit.
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(limit))
	for _, u := range memoryUnits {
		num, ok := strings.CutSuffix(upper, u.suffix)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(v * float64(u.factor)), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB (got %s)", limit)
}
