// Package cmd implements the ocr command line tool.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MeKo-Tech/ocrlite/internal/config"
	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ExitCodeError is returned to the shell for any failure: invalid or missing
// arguments, missing files and processing errors alike.
const ExitCodeError = -1

// Option customizes a command tree created by NewRootCommand.
type Option func(*app)

// WithBuilderHook lets the caller adjust the pipeline builder right before
// Build, for example to supply models that are not read from disk.
func WithBuilderHook(hook func(*pipeline.Builder) *pipeline.Builder) Option {
	return func(a *app) { a.builderHook = hook }
}

// WithViper binds the flags to v instead of a fresh viper instance.
func WithViper(v *viper.Viper) Option {
	return func(a *app) { a.v = v }
}

// app is the state shared by the commands of one invocation.
type app struct {
	v           *viper.Viper
	loader      *config.Loader
	cfg         *config.Config
	cfgFile     string
	builderHook func(*pipeline.Builder) *pipeline.Builder
}

// NewRootCommand creates the ocr command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{}
	for _, opt := range opts {
		opt(a)
	}
	if a.v == nil {
		a.v = viper.New()
	}
	a.loader = config.NewLoaderWithViper(a.v)

	root := &cobra.Command{
		Use:   "ocr",
		Short: "OCR pipeline for text detection and recognition",
		Long: `ocr finds text regions in images with a DB detection network, straightens
them, fixes upside-down lines with an angle classifier and reads them with a
CRNN recognizer. All three networks run on ONNX Runtime.

Examples:
  ocr image --image-path photo.jpg
  ocr image scans/ --format json
  ocr pdf document.pdf --pages 1-3
  ocr serve --port 8080`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ocrlite.yaml in ., $HOME, $XDG_CONFIG_HOME/ocrlite, /etc/ocrlite)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("models-dir", "", "directory containing det.onnx, cls.onnx, rec.onnx and keys.txt")
	bindFlags(root, map[string]string{
		"verbose":    "verbose",
		"log-level":  "log_level",
		"log-format": "log_format",
		"models-dir": "models_dir",
	})

	root.AddCommand(
		newImageCommand(a),
		newPDFCommand(a),
		newServeCommand(a),
		newConfigCommand(a),
		newModelsCommand(a),
	)
	return root
}

// Execute runs the command line tool and exits with ExitCodeError on failure.
func Execute() {
	root := NewRootCommand(WithViper(viper.GetViper()))
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(ExitCodeError)
	}
}

// bindAnnotation prefixes the command annotations recording flag bindings.
const bindAnnotation = "ocrlite/bind:"

// bindFlags records which configuration key a flag sets. The bindings are
// applied when the command runs, so commands sharing a key do not overwrite
// each other's flags.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	for flag, key := range keys {
		cmd.Annotations[bindAnnotation+flag] = key
	}
}

// bind maps flag names to configuration keys.
func (a *app) bind(fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		if err := a.v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// init binds the flags of the running command, loads the configuration and
// installs the logger.
func (a *app) init(cmd *cobra.Command) error {
	keys := map[string]string{}
	for c := cmd; c != nil; c = c.Parent() {
		for name, key := range c.Annotations {
			if flag, ok := strings.CutPrefix(name, bindAnnotation); ok {
				keys[flag] = key
			}
		}
	}
	if err := a.bind(cmd.Flags(), keys); err != nil {
		return err
	}

	var err error
	if a.cfgFile != "" {
		a.cfg, err = a.loader.LoadWithFile(a.cfgFile)
	} else {
		a.cfg, err = a.loader.Load()
	}
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), a.cfg))
	return nil
}

// config returns the loaded configuration.
func (a *app) config() (*config.Config, error) {
	if a.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return a.cfg, nil
}

// build creates the pipeline for pc. The options run before the builder
// hook.
func (a *app) build(pc pipeline.Config, opts ...func(*pipeline.Builder) *pipeline.Builder) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilderFromConfig(pc)
	for _, opt := range opts {
		b = opt(b)
	}
	if a.builderHook != nil {
		b = a.builderHook(b)
	}
	return b.Build()
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
