// Package models resolves the network and dictionary files of the OCR pipeline.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default file names inside the models directory.
const (
	Detection      = "det.onnx"
	Classification = "cls.onnx"
	Recognition    = "rec.onnx"
	Keys           = "keys.txt"
)

// DefaultModelsDir is used when neither a flag nor the environment names one.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "OCRLITE_MODELS_DIR"

// ErrModelNotFound is returned when a model or dictionary file is missing.
var ErrModelNotFound = errors.New("model file not found")

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. $OCRLITE_MODELS_DIR, 3. <project root>/models.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// Set names the four files the pipeline needs.
type Set struct {
	Detection      string `json:"detection" yaml:"detection"`
	Classification string `json:"classification" yaml:"classification"`
	Recognition    string `json:"recognition" yaml:"recognition"`
	Keys           string `json:"keys" yaml:"keys"`
}

// DefaultSet returns the default file names joined to the models directory.
func DefaultSet(modelsDir string) Set {
	dir := GetModelsDir(modelsDir)
	return Set{
		Detection:      filepath.Join(dir, Detection),
		Classification: filepath.Join(dir, Classification),
		Recognition:    filepath.Join(dir, Recognition),
		Keys:           filepath.Join(dir, Keys),
	}
}

// WithOverrides replaces the paths that are non-empty in o.
func (s Set) WithOverrides(o Set) Set {
	if o.Detection != "" {
		s.Detection = o.Detection
	}
	if o.Classification != "" {
		s.Classification = o.Classification
	}
	if o.Recognition != "" {
		s.Recognition = o.Recognition
	}
	if o.Keys != "" {
		s.Keys = o.Keys
	}
	return s
}

// Validate checks that every file exists. The classifier is only required
// when needClassifier is set.
func (s Set) Validate(needClassifier bool) error {
	paths := []string{s.Detection, s.Recognition, s.Keys}
	if needClassifier {
		paths = append(paths, s.Classification)
	}
	var errs []error
	for _, p := range paths {
		if err := ValidateModelExists(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateModelExists returns ErrModelNotFound (wrapped with the path) when
// path is empty, missing or a directory.
func ValidateModelExists(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrModelNotFound)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrModelNotFound, path)
	}
	return nil
}

// ModelInfo describes one of the pipeline files.
type ModelInfo struct {
	Name        string
	Filename    string
	Description string
	Path        string
	Present     bool
}

// ListAvailableModels reports which default files exist in modelsDir.
func ListAvailableModels(modelsDir string) []ModelInfo {
	dir := GetModelsDir(modelsDir)
	infos := []ModelInfo{
		{Name: "detection", Filename: Detection, Description: "DB text detection network"},
		{Name: "classification", Filename: Classification, Description: "text line angle classifier"},
		{Name: "recognition", Filename: Recognition, Description: "CRNN text recognition network"},
		{Name: "keys", Filename: Keys, Description: "recognition dictionary, one key per line"},
	}
	for i := range infos {
		infos[i].Path = filepath.Join(dir, infos[i].Filename)
		infos[i].Present = ValidateModelExists(infos[i].Path) == nil
	}
	return infos
}
