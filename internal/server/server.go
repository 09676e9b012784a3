// Package server exposes the OCR pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/gorilla/mux"
)

// Processor is the part of the pipeline the server needs.
type Processor interface {
	Process(ctx context.Context, img image.Image) (*pipeline.Result, error)
	ProcessPDF(ctx context.Context, filename, pageRange string) (*pipeline.PDFResult, error)
	Info() map[string]any
	Close() error
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout int

	// Per-client limits, 0 disables them.
	RequestsPerMinute int
	MaxUploadMBPerDay int64
}

// DefaultConfig returns the settings used by `ocr serve` without flags.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		MaxUploadMB:     50,
		TimeoutSec:      30,
		ShutdownTimeout: 10,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	cfg       Config
	processor Processor
	metrics   *Metrics
	limiter   *RateLimiter
	router    *mux.Router
}

// New creates a server around p. m may be nil, in which case metrics are
// collected into a private registry. The server owns p and closes it in
// Close.
func New(cfg Config, p Processor, m *Metrics) (*Server, error) {
	if p == nil {
		return nil, errors.New("processor is required")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultConfig().MaxUploadMB
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = DefaultConfig().TimeoutSec
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	s := &Server{cfg: cfg, processor: p, metrics: m}
	if cfg.RequestsPerMinute > 0 || cfg.MaxUploadMBPerDay > 0 {
		s.limiter = NewRateLimiter(cfg.RequestsPerMinute, cfg.MaxUploadMBPerDay<<20)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.instrumentMiddleware, s.corsMiddleware)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/info", s.infoHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/ws", s.webSocketHandler).Methods(http.MethodGet)

	ocr := api.PathPrefix("/ocr").Subrouter()
	ocr.Use(s.rateLimitMiddleware)
	ocr.HandleFunc("", s.ocrImageHandler).Methods(http.MethodPost, http.MethodOptions)
	ocr.HandleFunc("/pdf", s.ocrPDFHandler).Methods(http.MethodPost, http.MethodOptions)
	return r
}

// ListenAndServe serves until ctx is cancelled and then shuts down
// gracefully, waiting at most ShutdownTimeout seconds for open requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	timeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	slog.Info("Shutting down server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the processor.
func (s *Server) Close() error {
	return s.processor.Close()
}

func (s *Server) maxUploadBytes() int64 { return s.cfg.MaxUploadMB << 20 }

func (s *Server) timeout() time.Duration { return time.Duration(s.cfg.TimeoutSec) * time.Second }
