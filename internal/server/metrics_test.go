package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveStage(pipeline.StageDetection, 20*time.Millisecond)
	m.ObserveStage(pipeline.StageRecognition, 5*time.Millisecond)
	m.ObserveStage(pipeline.StageRecognition, 7*time.Millisecond)
	m.ObserveRegions(3)

	assert.Equal(t, 2, promtest.CollectAndCount(m.stageSeconds))
	assert.Equal(t, 1, promtest.CollectAndCount(m.regions))
}

func TestMetrics_OCRRequest(t *testing.T) {
	m := NewMetrics(nil)
	m.ocrRequest("image", nil)
	m.ocrRequest("image", errors.New("boom"))
	m.ocrRequest("image", nil)

	assert.InDelta(t, 2, promtest.ToFloat64(m.ocrRequests.WithLabelValues("image", "success")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.ocrRequests.WithLabelValues("image", "error")), 0)
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveRegions(4)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ocrlite_regions_detected_sum 4")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
