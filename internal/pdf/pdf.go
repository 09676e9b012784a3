// Package pdf pulls the embedded raster images out of PDF documents so they
// can be run through the OCR pipeline.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/ocrlite/internal/utils"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrInvalidDocument is wrapped by errors caused by the input: a bad page
// range or a file pdfcpu cannot read.
var ErrInvalidDocument = errors.New("invalid PDF document")

// Page holds the images embedded in one PDF page, in extraction order.
type Page struct {
	Number int
	Images []image.Image
}

// ExtractImages extracts the images of the selected pages of the PDF at path.
// pageRange is a list such as "1-3,7"; empty selects every page. Pages
// without images are left out and the rest are sorted by page number.
func ExtractImages(path, pageRange string) ([]Page, error) {
	pages, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid page range %q: %w", ErrInvalidDocument, pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "ocrlite-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pages {
		selected = append(selected, strconv.Itoa(n))
	}
	if err := api.ExtractImagesFile(path, tempDir, selected, nil); err != nil {
		return nil, fmt.Errorf("%w: failed to extract images from PDF: %w", ErrInvalidDocument, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return collectExtractedImages(tempDir, base)
}

// collectExtractedImages loads the files pdfcpu wrote to dir and groups them
// by page. Files whose names carry no page number or that do not decode are
// skipped.
func collectExtractedImages(dir, base string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	byPage := map[int]*Page{}
	for _, name := range names {
		n, err := parsePageFromFilename(name, base)
		if err != nil {
			continue
		}
		img, err := utils.LoadImage(filepath.Join(dir, name))
		if err != nil {
			slog.Debug("Skipping extracted file", "file", name, "error", err)
			continue
		}
		p, ok := byPage[n]
		if !ok {
			p = &Page{Number: n}
			byPage[n] = p
		}
		p.Images = append(p.Images, img)
	}

	out := make([]Page, 0, len(byPage))
	for _, p := range byPage {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Page) int { return a.Number - b.Number })
	return out, nil
}

// parsePageFromFilename reads the page number of an extracted image. pdfcpu
// names files <base>_<page>_<id>.<ext>; the older page_<page>_... form is
// accepted too.
func parsePageFromFilename(filename, base string) (int, error) {
	var rest string
	switch {
	case base != "" && strings.HasPrefix(filename, base+"_"):
		rest = strings.TrimPrefix(filename, base+"_")
	case strings.HasPrefix(filename, "page_"):
		rest = strings.TrimPrefix(filename, "page_")
	default:
		return 0, errors.New("not a page file")
	}

	field, _, _ := strings.Cut(rest, "_")
	field = strings.TrimSuffix(field, filepath.Ext(field))
	n, err := strconv.Atoi(field)
	if err != nil || n < 1 {
		return 0, errors.New("invalid page number")
	}
	return n, nil
}

// parsePageRange parses a page range string like "1-5" or "1,3,5".
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}
	var pages []int
	for part := range strings.SplitSeq(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

// parseRangeToken parses either a single page ("3") or a range ("1-5").
func parseRangeToken(part string) ([]int, error) {
	lo, hi, isRange := strings.Cut(part, "-")
	if !isRange {
		page, err := strconv.Atoi(part)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("invalid page number: %s", part)
		}
		return []int{page}, nil
	}
	if strings.Contains(hi, "-") {
		return nil, fmt.Errorf("invalid range format: %s", part)
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || start < 1 {
		return nil, fmt.Errorf("invalid start page: %s", lo)
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return nil, fmt.Errorf("invalid end page: %s", hi)
	}
	if start > end {
		return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
	}
	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out, nil
}
