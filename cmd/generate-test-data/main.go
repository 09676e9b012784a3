// Command generate-test-data writes synthetic text images under
// testdata/images for manual runs of the ocr tool and the benchmarks.
package main

import (
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/ocrlite/internal/testutil"
	"github.com/disintegration/imaging"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir = flag.String("out", "", "output directory (default <project root>/testdata/images)")
		help   = flag.Bool("h", false, "Show help")
	)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Generate synthetic text images for ocrlite.\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}

	dir := *outDir
	if dir == "" {
		root, err := testutil.GetProjectRoot()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(root, "testdata", "images")
	}

	n, err := generateImages(dir)
	if err != nil {
		slog.Error("Failed to generate test images", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed", "dir", dir, "images", n)
}

// generateImages writes every sample below dir and returns how many.
func generateImages(dir string) (int, error) {
	samples := map[string]image.Image{}

	cfg := testutil.DefaultTextImageConfig()
	for i, word := range []string{"Hello", "World", "OCR", "Test", "123", "Sample"} {
		cfg.Lines = []string{word}
		samples[fmt.Sprintf("simple/simple_%d_%s.png", i+1, word)] = testutil.GenerateTextImage(cfg)
	}

	cfg = testutil.DefaultTextImageConfig()
	cfg.Lines = []string{"This is a", "multiline text sample", "for OCR testing"}
	cfg.Width, cfg.Height = 640, 320
	samples["multiline/multiline_document.png"] = testutil.GenerateTextImage(cfg)

	cfg = testutil.DefaultTextImageConfig()
	cfg.Lines = []string{"Rotated Text"}
	for _, angle := range []float64{0, 90, 180, 270, 15, -15} {
		cfg.Rotation = angle
		samples[fmt.Sprintf("rotated/rotated_%.0f.png", angle)] = testutil.GenerateTextImage(cfg)
	}

	for name, img := range samples {
		path := filepath.Join(dir, name)
		if err := testutil.EnsureDir(filepath.Dir(path)); err != nil {
			return 0, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := imaging.Save(img, path); err != nil {
			return 0, fmt.Errorf("save %s: %w", path, err)
		}
		slog.Debug("Wrote image", "path", path)
	}
	return len(samples), nil
}
