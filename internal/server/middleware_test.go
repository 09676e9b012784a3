package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t, DefaultConfig(), &stubProcessor{}, nil)

	first := serve(s, http.MethodGet, "/healthz").Header().Get(RequestIDHeader)
	second := serve(s, http.MethodGet, "/healthz").Header().Get(RequestIDHeader)
	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "client-42", w.Header().Get(RequestIDHeader))

	assert.Empty(t, RequestID(context.Background()))
}

func TestCORSMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CORSOrigin = "https://app.example"
	s := newTestServer(t, cfg, &stubProcessor{}, nil)

	w := serve(s, http.MethodOptions, "/api/v1/ocr")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader)

	w = serve(s, http.MethodGet, "/healthz")
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	cfg.CORSOrigin = ""
	s = newTestServer(t, cfg, &stubProcessor{}, nil)
	w = serve(s, http.MethodGet, "/healthz")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 1
	s := newTestServer(t, cfg, &stubProcessor{}, nil)

	// the limit applies to the OCR routes only
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPost, "/api/v1/ocr").Code)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/healthz").Code)

	w := serve(s, http.MethodPost, "/api/v1/ocr")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, limitRequestsPerMinute, w.Header().Get("X-RateLimit-Type"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, w.Body.Bytes()).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	other := httptest.NewRecorder()
	s.Handler().ServeHTTP(other, req)
	assert.Equal(t, http.StatusBadRequest, other.Code, "other clients keep their own budget")
}

func TestRateLimitMiddleware_Quota(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUploadMBPerDay = 1
	s := newTestServer(t, cfg, &stubProcessor{}, nil)

	w := upload(t, s, "/api/v1/ocr", "image", "big.png", make([]byte, 1<<20))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, limitUploadPerDay, w.Header().Get("X-Quota-Type"))
	assert.Equal(t, "0", w.Header().Get("X-Quota-Used"))
	assert.Equal(t, "quota_exceeded", decodeError(t, w.Body.Bytes()).Error)
}

func TestInstrumentMiddleware(t *testing.T) {
	s, m := newFakeServer(t)

	w := upload(t, s, "/api/v1/ocr", "image", "sample.png", blockPNG(t))
	require.Equal(t, http.StatusOK, w.Code)

	metrics := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `ocrlite_http_requests_total{method="POST",route="/api/v1/ocr",status="200"} 1`)
	assert.Contains(t, text, `ocrlite_stage_duration_seconds_count{stage="detection"} 1`)
	assert.Contains(t, text, `ocrlite_regions_detected_count 1`)
	assert.Contains(t, text, "go_goroutines")
	assert.InDelta(t, 1, promtest.ToFloat64(m.ocrRequests.WithLabelValues("image", "success")), 0)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.1"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 203.0.113.2 "}, "10.0.0.2:1234", "203.0.113.2"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.3"}, "10.0.0.2:1234", "203.0.113.3"},
		{"remote addr", nil, "192.0.2.7:5555", "192.0.2.7"},
		{"remote without port", nil, "192.0.2.8", "192.0.2.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
