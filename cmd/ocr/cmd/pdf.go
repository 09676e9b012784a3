package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MeKo-Tech/ocrlite/internal/common"
	"github.com/MeKo-Tech/ocrlite/internal/config"
	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/spf13/cobra"
)

func newPDFCommand(a *app) *cobra.Command {
	var pages string

	cmd := &cobra.Command{
		Use:   "pdf <file.pdf>",
		Short: "Run OCR on the images embedded in a PDF",
		Long: `Extract the images embedded in the pages of a PDF document and run OCR on
each of them in page order. Vector text is not read.

Examples:
  ocr pdf scan.pdf
  ocr pdf scan.pdf --pages 1-3,7 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			format := strings.ToLower(cfg.Output.Format)
			if format != outputFormatText && format != outputFormatJSON {
				return fmt.Errorf("invalid output format: %s (must be one of: text, json)", cfg.Output.Format)
			}

			pc, err := cfg.ToPipelineConfig()
			if err != nil {
				return err
			}
			p, err := a.build(pc)
			if err != nil {
				return fmt.Errorf("failed to initialize pipeline: %w", err)
			}
			defer func() { _ = p.Close() }()

			res, err := p.ProcessPDF(cmd.Context(), args[0], pages)
			if err != nil {
				return err
			}
			if len(res.Images) == 0 {
				return errors.New("no images found in the selected pages")
			}
			if format == outputFormatJSON {
				out, err := pipeline.PDFToJSON(res)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			}
			return writePDFText(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	d := config.DefaultConfig()
	f.StringVarP(&pages, "pages", "p", "", "pages to process, e.g. 1-3,5 (default all)")
	f.StringP("format", "f", d.Output.Format, "output format (text, json)")
	addModelFlags(cmd)
	addPipelineFlags(cmd, d)
	addGPUFlags(cmd, d)
	bindFlags(cmd, map[string]string{"format": "output.format"})
	return cmd
}

func writePDFText(w io.Writer, res *pipeline.PDFResult) error {
	var prof pipeline.Profiler
	for _, img := range res.Images {
		prof.Record(img.Result)
		if img.Result == nil {
			continue
		}
		out, err := pipeline.ToPlainText(img.Result)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "[%s]\n%s", img.Name(res.Filename), out); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "sum_det_time: %.3f sum_full_time: %.3f extraction_time: %.3f\n",
		common.Millis(prof.DetectionTime()), common.Millis(prof.TotalTime()), common.Millis(res.ExtractionTime))
	return err
}
