package pipeline

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/ocrlite/internal/orientation"
	"github.com/MeKo-Tech/ocrlite/internal/recognizer"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// OutputOptions selects the files and console output written for every
// processed image. Files go to Dir, named after the input.
type OutputOptions struct {
	Dir         string
	Console     io.Writer // receives the recognized text when set
	PartImages  bool      // <name>_<i>.jpg and <name>_<i>_part.jpg
	ResultImage bool      // <name>_result.jpg
	ResultText  bool      // <name>_result.txt
	DebugImages bool      // <name>_angle_<i>.jpg and <name>_text_<i>.jpg
}

func (o OutputOptions) writesFiles() bool {
	return o.PartImages || o.ResultImage || o.ResultText || o.DebugImages
}

func (o OutputOptions) write(name string, res *Result, art *artifacts) error {
	if o.Console != nil {
		if _, err := fmt.Fprintln(o.Console, res.Text); err != nil {
			return err
		}
	}
	if !o.writesFiles() {
		return nil
	}

	dir := o.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := func(suffix string) string { return filepath.Join(dir, name+suffix) }

	if o.PartImages {
		for i, strip := range art.strips {
			if err := utils.SaveJPEG(path(fmt.Sprintf("_%d.jpg", i)), strip); err != nil {
				return err
			}
		}
		for i, part := range art.parts {
			if err := utils.SaveJPEG(path(fmt.Sprintf("_%d_part.jpg", i)), part); err != nil {
				return err
			}
		}
	}
	if o.DebugImages {
		if err := writeDebugImages(path, art); err != nil {
			return err
		}
	}
	if o.ResultImage && res.Image != nil {
		if err := utils.SaveJPEG(path("_result.jpg"), res.Image); err != nil {
			return err
		}
	}
	if o.ResultText {
		if err := os.WriteFile(path("_result.txt"), []byte(res.Text), 0o600); err != nil {
			return fmt.Errorf("write result text: %w", err)
		}
	}
	return nil
}

// writeDebugImages dumps the exact classifier and recognizer inputs.
func writeDebugImages(path func(string) string, art *artifacts) error {
	for i, strip := range art.strips {
		adjusted := orientation.AdjustSize(strip, orientation.InputWidth, orientation.InputHeight)
		if err := utils.SaveJPEG(path(fmt.Sprintf("_angle_%d.jpg", i)), adjusted); err != nil {
			return err
		}
	}
	for i, part := range art.parts {
		var img image.Image = part
		if resized, err := recognizer.ResizeToHeight(part, recognizer.InputHeight); err == nil {
			img = resized
		}
		if err := utils.SaveJPEG(path(fmt.Sprintf("_text_%d.jpg", i)), img); err != nil {
			return err
		}
	}
	return nil
}
