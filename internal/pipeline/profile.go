package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/common"
)

// Profiler sums timings across processed images. It is safe for concurrent use.
type Profiler struct {
	detection atomic.Int64
	total     atomic.Int64
	images    atomic.Int64
	regions   atomic.Int64
	failed    atomic.Int64
}

// Record adds one result; a nil result counts as a failure.
func (p *Profiler) Record(res *Result) {
	if res == nil {
		p.failed.Add(1)
		return
	}
	p.detection.Add(int64(res.DetectionTime))
	p.total.Add(int64(res.TotalTime))
	p.images.Add(1)
	p.regions.Add(int64(len(res.Blocks)))
}

// DetectionTime returns the summed detection time.
func (p *Profiler) DetectionTime() time.Duration { return time.Duration(p.detection.Load()) }

// TotalTime returns the summed wall time of all images.
func (p *Profiler) TotalTime() time.Duration { return time.Duration(p.total.Load()) }

// Snapshot returns cumulative metrics with times in milliseconds.
func (p *Profiler) Snapshot() map[string]any {
	imgs := p.images.Load()
	out := map[string]any{
		"images":           imgs,
		"failed":           p.failed.Load(),
		"regions":          p.regions.Load(),
		"sum_det_time_ms":  common.Millis(p.DetectionTime()),
		"sum_full_time_ms": common.Millis(p.TotalTime()),
	}
	if imgs > 0 {
		out["full_time_ms_per_image"] = common.Millis(p.TotalTime()) / float64(imgs)
	}
	return out
}
