package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/pdf"
	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
	"github.com/MeKo-Tech/ocrlite/internal/version"
)

var errBadUpload = errors.New("invalid upload")

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) infoHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.Info())
}

// ocrImageHandler runs OCR on the multipart field "image". The query
// parameter format selects json (default), yaml or text; annotate=true
// returns the annotated image as PNG instead.
func (s *Server) ocrImageHandler(w http.ResponseWriter, r *http.Request) {
	file, name, err := s.formFile(w, r, "image")
	if err != nil {
		s.metrics.ocrRequest("image", err)
		writeError(w, r, statusForError(err), "invalid_upload", err)
		return
	}
	defer func() { _ = file.Close() }()

	img, _, err := utils.DecodeImage(file)
	if err != nil {
		s.metrics.ocrRequest("image", err)
		writeError(w, r, http.StatusBadRequest, "invalid_image", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
	defer cancel()
	res, err := s.processor.Process(ctx, img)
	s.metrics.ocrRequest("image", err)
	if err != nil {
		slog.Error("OCR failed", "file", name, "error", err, "request_id", RequestID(r.Context()))
		writeError(w, r, statusForError(err), "processing_failed", err)
		return
	}

	q := r.URL.Query()
	if q.Get("annotate") == "true" {
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, res.Image); err != nil {
			slog.Error("Failed to encode annotated image", "error", err)
		}
		return
	}

	format := strings.ToLower(q.Get("format"))
	if format == "" {
		format = "json"
	}
	body, err := pipeline.Format(format, name, res)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_format", err)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	_, _ = io.WriteString(w, body)
}

// ocrPDFHandler runs OCR on the images embedded in the multipart field
// "pdf". The query parameter pages selects a page range such as "1-3,5".
func (s *Server) ocrPDFHandler(w http.ResponseWriter, r *http.Request) {
	file, name, err := s.formFile(w, r, "pdf")
	if err != nil {
		s.metrics.ocrRequest("pdf", err)
		writeError(w, r, statusForError(err), "invalid_upload", err)
		return
	}
	defer func() { _ = file.Close() }()

	tmp, err := os.CreateTemp("", "ocrlite-*.pdf")
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", err)
		return
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, file); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
	defer cancel()
	res, err := s.processor.ProcessPDF(ctx, tmp.Name(), r.URL.Query().Get("pages"))
	s.metrics.ocrRequest("pdf", err)
	if err != nil {
		slog.Error("PDF OCR failed", "file", name, "error", err, "request_id", RequestID(r.Context()))
		writeError(w, r, statusForError(err), "processing_failed", err)
		return
	}
	res.Filename = name

	body, err := pipeline.PDFToJSON(res)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

// formFile limits the request body and returns the named multipart file
// with its client side file name.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (io.ReadCloser, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		return nil, "", fmt.Errorf("%w: %w", errBadUpload, err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%w: form field %q: %w", errBadUpload, field, err)
	}
	s.metrics.uploadBytes.Observe(float64(header.Size))
	return file, header.Filename, nil
}

func statusForError(err error) int {
	var tooLarge *http.MaxBytesError
	var imgErr *utils.ImageProcessingError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &imgErr), errors.Is(err, errBadUpload), errors.Is(err, pdf.ErrInvalidDocument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func contentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "yaml", "yml":
		return "application/yaml"
	}
	return "text/plain; charset=utf-8"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		RequestID: RequestID(r.Context()),
	})
}
