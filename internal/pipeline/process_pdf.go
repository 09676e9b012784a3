package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/pdf"
)

// PDFImageResult is the OCR result of one image embedded in a PDF page.
type PDFImageResult struct {
	Page   int
	Index  int // position of the image on its page
	Result *Result
}

// PDFResult collects the results of every extracted image of a document.
type PDFResult struct {
	Filename       string
	Images         []PDFImageResult
	ExtractionTime time.Duration
	TotalTime      time.Duration
}

// Name returns the output name used for one image, <file>_p<page>_<index>.
func (r PDFImageResult) Name(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return fmt.Sprintf("%s_p%d_%d", base, r.Page, r.Index)
}

// ProcessPDF extracts the images of the selected pages of a PDF and runs the
// pipeline on each of them in page order.
func (p *Pipeline) ProcessPDF(ctx context.Context, filename, pageRange string) (*PDFResult, error) {
	if filename == "" {
		return nil, errors.New("filename cannot be empty")
	}
	start := time.Now()
	pages, err := pdf.ExtractImages(filename, pageRange)
	if err != nil {
		return nil, err
	}
	out := &PDFResult{Filename: filename, ExtractionTime: time.Since(start)}

	for _, page := range pages {
		for i, img := range page.Images {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entry := PDFImageResult{Page: page.Number, Index: i}
			res, err := p.processNamed(ctx, img, entry.Name(filename))
			if err != nil {
				return nil, fmt.Errorf("page %d image %d: %w", page.Number, i, err)
			}
			entry.Result = res
			out.Images = append(out.Images, entry)
		}
	}
	out.TotalTime = time.Since(start)
	return out, nil
}
