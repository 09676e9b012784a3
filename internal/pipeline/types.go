package pipeline

import (
	"image"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/common"
)

// TextBlock is one recognized text region.
type TextBlock struct {
	Points     [4]image.Point `json:"points" yaml:"points"` // TL, TR, BR, BL in input coordinates
	BoxScore   float64        `json:"box_score" yaml:"box_score"`
	AngleIndex int            `json:"angle_index" yaml:"angle_index"` // -1 not computed, 0 rotated, 1 upright
	AngleScore float64        `json:"angle_score" yaml:"angle_score"`
	AngleTime  time.Duration  `json:"-" yaml:"-"`
	Text       string         `json:"text" yaml:"text"`
	CharScores []float64      `json:"char_scores" yaml:"char_scores"`
	CrnnTime   time.Duration  `json:"-" yaml:"-"`
	BlockTime  time.Duration  `json:"-" yaml:"-"` // AngleTime + CrnnTime
}

// Result is the OCR output for one image.
type Result struct {
	Blocks        []TextBlock
	Image         image.Image // annotated copy of the input
	Text          string      // every block's text followed by a newline
	DetectionTime time.Duration
	TotalTime     time.Duration
}

// Stage names reported to an Observer.
const (
	StageDetection   = "detection"
	StageRectify     = "rectify"
	StageOrientation = "orientation"
	StageRecognition = "recognition"
	StageTotal       = "total"
)

// Observer receives stage timings and region counts of every processed image.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveRegions(n int)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ObserveStage(string, time.Duration) {}
func (NopObserver) ObserveRegions(int)                 {}

// blockJSON is the serialized form of a TextBlock with timings in milliseconds.
type blockJSON struct {
	Points     [][2]int  `json:"points" yaml:"points,flow"`
	BoxScore   float64   `json:"box_score" yaml:"box_score"`
	AngleIndex int       `json:"angle_index" yaml:"angle_index"`
	AngleScore float64   `json:"angle_score" yaml:"angle_score"`
	AngleTime  float64   `json:"angle_time_ms" yaml:"angle_time_ms"`
	Text       string    `json:"text" yaml:"text"`
	CharScores []float64 `json:"char_scores" yaml:"char_scores,flow"`
	CrnnTime   float64   `json:"crnn_time_ms" yaml:"crnn_time_ms"`
	BlockTime  float64   `json:"block_time_ms" yaml:"block_time_ms"`
}

// resultJSON is the serialized form of a Result; the image is left out.
type resultJSON struct {
	Source        string      `json:"source,omitempty" yaml:"source,omitempty"`
	Blocks        []blockJSON `json:"blocks" yaml:"blocks"`
	Text          string      `json:"text" yaml:"text"`
	DetectionTime float64     `json:"det_time_ms" yaml:"det_time_ms"`
	TotalTime     float64     `json:"full_time_ms" yaml:"full_time_ms"`
}

func toResultJSON(source string, r *Result) resultJSON {
	out := resultJSON{
		Source:        source,
		Blocks:        make([]blockJSON, len(r.Blocks)),
		Text:          r.Text,
		DetectionTime: common.Millis(r.DetectionTime),
		TotalTime:     common.Millis(r.TotalTime),
	}
	for i, b := range r.Blocks {
		pts := make([][2]int, len(b.Points))
		for j, p := range b.Points {
			pts[j] = [2]int{p.X, p.Y}
		}
		scores := b.CharScores
		if scores == nil {
			scores = []float64{}
		}
		out.Blocks[i] = blockJSON{
			Points:     pts,
			BoxScore:   b.BoxScore,
			AngleIndex: b.AngleIndex,
			AngleScore: b.AngleScore,
			AngleTime:  common.Millis(b.AngleTime),
			Text:       b.Text,
			CharScores: scores,
			CrnnTime:   common.Millis(b.CrnnTime),
			BlockTime:  common.Millis(b.BlockTime),
		}
	}
	return out
}

type pdfImageJSON struct {
	Page   int        `json:"page"`
	Index  int        `json:"index"`
	Result resultJSON `json:"result"`
}

type pdfResultJSON struct {
	Filename       string         `json:"filename"`
	Images         []pdfImageJSON `json:"images"`
	ExtractionTime float64        `json:"extraction_time_ms"`
	TotalTime      float64        `json:"total_time_ms"`
}
