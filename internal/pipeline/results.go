package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/ocrlite/internal/common"
	"gopkg.in/yaml.v3"
)

// ToJSON serializes a result to pretty JSON. source, when not empty, names
// the input. The annotated image is not included.
func ToJSON(source string, res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(toResultJSON(source, res), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONBatch serializes several file results as a JSON array.
func ToJSONBatch(results []FileResult) (string, error) {
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		if r.Result != nil {
			out = append(out, toResultJSON(r.Path, r.Result))
		}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PDFToJSON serializes the results of every image of a document. Each
// image's source is its output name.
func PDFToJSON(res *PDFResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	out := pdfResultJSON{
		Filename:       res.Filename,
		Images:         make([]pdfImageJSON, 0, len(res.Images)),
		ExtractionTime: common.Millis(res.ExtractionTime),
		TotalTime:      common.Millis(res.TotalTime),
	}
	for _, img := range res.Images {
		if img.Result == nil {
			continue
		}
		out.Images = append(out.Images, pdfImageJSON{
			Page:   img.Page,
			Index:  img.Index,
			Result: toResultJSON(img.Name(res.Filename), img.Result),
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes a result to YAML.
func ToYAML(source string, res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := yaml.Marshal(toResultJSON(source, res))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainText returns the recognized text followed by the timing line the
// command line tool prints.
func ToPlainText(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var b strings.Builder
	b.WriteString(res.Text)
	fmt.Fprintf(&b, "det_time: %.3f full_time: %.3f\n", common.Millis(res.DetectionTime), common.Millis(res.TotalTime))
	return b.String(), nil
}

// Format renders res in one of the supported output formats.
func Format(format, source string, res *Result) (string, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return ToPlainText(res)
	case "json":
		return ToJSON(source, res)
	case "yaml", "yml":
		return ToYAML(source, res)
	}
	return "", fmt.Errorf("unsupported format %q", format)
}
