package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/ocrlite/internal/models"
	"github.com/MeKo-Tech/ocrlite/internal/onnx"
	"github.com/spf13/cobra"
)

func newModelsCommand(a *app) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model files and test the ONNX Runtime setup",
		Long: `List the detection, classification and recognition models and the keys
file expected in the models directory and whether they exist.

With --check the ONNX Runtime shared library is loaded as well, which
verifies that the runtime is installed and found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			dir := models.GetModelsDir(cfg.ModelsDir)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Models directory: %s\n\n", dir)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tFILE\tSTATUS\tDESCRIPTION")
			missing := 0
			for _, m := range models.ListAvailableModels(dir) {
				status := "ok"
				if !m.Present {
					status = "missing"
					missing++
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Filename, status, m.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if check {
				opts := onnx.DefaultSessionOptions()
				opts.GPU.UseGPU = cfg.GPU.Enabled
				if err := onnx.InitEnvironment(opts); err != nil {
					return fmt.Errorf("ONNX Runtime test failed: %w", err)
				}
				_, _ = fmt.Fprintln(out, "\nONNX Runtime is ready for use.")
			}
			if missing > 0 {
				return errors.New("model files missing")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "also load the ONNX Runtime library")
	return cmd
}
