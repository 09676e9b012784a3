package server

import (
	"net/http"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the server. It also implements
// pipeline.Observer, so passing it to the pipeline builder exports the stage
// timings of every processed image.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	ocrRequests  *prometheus.CounterVec
	stageSeconds *prometheus.HistogramVec
	regions      prometheus.Histogram
	uploadBytes  prometheus.Histogram

	rateLimitHits *prometheus.CounterVec

	wsConnections prometheus.Gauge
	wsMessages    *prometheus.CounterVec
}

var _ pipeline.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors with reg, or with a new registry when
// reg is nil. Go runtime and process collectors are registered as well.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrlite_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocrlite_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ocrRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrlite_ocr_requests_total",
				Help: "Total number of OCR requests",
			},
			[]string{"type", "status"}, // type: image, pdf, ws
		),
		stageSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocrlite_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		regions: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ocrlite_regions_detected",
				Help:    "Number of text regions detected per image",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		uploadBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ocrlite_upload_size_bytes",
				Help:    "Size of uploaded files in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
			},
		),
		rateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrlite_rate_limit_hits_total",
				Help: "Total number of rejected requests",
			},
			[]string{"type"},
		),
		wsConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrlite_websocket_active_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		wsMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrlite_websocket_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction"}, // received, sent
		),
	}
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRegions records the number of regions detected in one image.
func (m *Metrics) ObserveRegions(n int) {
	m.regions.Observe(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ocrRequest(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ocrRequests.WithLabelValues(kind, status).Inc()
}
