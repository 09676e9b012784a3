package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/ocrlite/internal/config"
	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for OCR API",
		Long: `Start an HTTP server that provides REST and WebSocket endpoints for OCR.

The server provides the following endpoints:
  POST /api/v1/ocr     - Process an uploaded image (multipart field "image")
  POST /api/v1/ocr/pdf - Process the images of an uploaded PDF (field "pdf")
  GET  /api/v1/ws      - WebSocket, one binary image frame per request
  GET  /api/v1/info    - Pipeline configuration
  GET  /healthz        - Health check endpoint
  GET  /metrics        - Prometheus metrics

Examples:
  ocr serve
  ocr serve --port 8080
  ocr serve --host 0.0.0.0 --port 3000 --requests-per-minute 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			pc, err := cfg.ToPipelineConfig()
			if err != nil {
				return err
			}

			metrics := server.NewMetrics(prometheus.NewRegistry())
			p, err := a.build(pc, func(b *pipeline.Builder) *pipeline.Builder {
				return b.WithObserver(metrics)
			})
			if err != nil {
				return fmt.Errorf("failed to initialize pipeline: %w", err)
			}

			srv, err := server.New(serverConfig(cfg.Server), p, metrics)
			if err != nil {
				_ = p.Close()
				return err
			}
			defer func() { _ = srv.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			slog.Info("Starting OCR server", "addr", cfg.Server.Host, "port", cfg.Server.Port,
				"models_dir", pc.ModelsDir)
			return srv.ListenAndServe(ctx)
		},
	}

	f := cmd.Flags()
	d := config.DefaultConfig()
	f.String("host", d.Server.Host, "interface to listen on")
	f.IntP("port", "p", d.Server.Port, "port to listen on")
	f.String("cors-origin", d.Server.CORSOrigin, "allowed CORS origin, empty disables CORS headers")
	f.Int("max-upload-size", d.Server.MaxUploadMB, "maximum upload size in MB")
	f.Int("timeout", d.Server.TimeoutSec, "processing timeout per request in seconds")
	f.Int("shutdown-timeout", d.Server.ShutdownTimeout, "graceful shutdown timeout in seconds")
	f.Int("requests-per-minute", d.Server.RequestsPerMinute, "OCR requests per client and minute, 0 for no limit")
	f.Int("max-upload-mb-per-day", d.Server.MaxUploadMBPerDay, "uploaded MB per client and day, 0 for no limit")
	addModelFlags(cmd)
	addPipelineFlags(cmd, d)
	addGPUFlags(cmd, d)
	bindFlags(cmd, map[string]string{
		"host":                  "server.host",
		"port":                  "server.port",
		"cors-origin":           "server.cors_origin",
		"max-upload-size":       "server.max_upload_mb",
		"timeout":               "server.timeout_sec",
		"shutdown-timeout":      "server.shutdown_timeout",
		"requests-per-minute":   "server.requests_per_minute",
		"max-upload-mb-per-day": "server.max_upload_mb_per_day",
	})
	return cmd
}

// serverConfig converts the server section of the configuration.
func serverConfig(c config.ServerConfig) server.Config {
	return server.Config{
		Host:              c.Host,
		Port:              c.Port,
		CORSOrigin:        c.CORSOrigin,
		MaxUploadMB:       int64(c.MaxUploadMB),
		TimeoutSec:        c.TimeoutSec,
		ShutdownTimeout:   c.ShutdownTimeout,
		RequestsPerMinute: c.RequestsPerMinute,
		MaxUploadMBPerDay: int64(c.MaxUploadMBPerDay),
	}
}
