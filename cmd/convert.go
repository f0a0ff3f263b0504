package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"lumen/internal/codec"
	"lumen/internal/convert"
	"lumen/internal/pipeline"
	"lumen/internal/tui"
)

var (
	convertFormat    string
	convertOutputDir string
)

var convertCmd = &cobra.Command{
	Use:   "convert --format <webp|png|jpeg> [flags] <file>",
	Short: "Change the container of an image without touching its pixels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := codec.ParseOutputFormat(convertFormat)
		if err != nil {
			return err
		}
		if format == codec.FormatOriginal {
			return fmt.Errorf("--format must name a container")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		art, err := convert.New().Convert(context.Background(), data, format)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(convertOutputDir, 0o755); err != nil {
			return err
		}
		dest := pipeline.OutputPath(convertOutputDir, filepath.Base(args[0]), art.Kind)
		if err := os.WriteFile(dest, art.Data, 0o644); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary([]tui.SummaryRow{
			{Label: "Input", Value: fmt.Sprintf("%s (%s)", args[0], tui.FormatBytes(int64(len(data))))},
			{Label: "Output", Value: fmt.Sprintf("%s (%s)", dest, tui.FormatBytes(int64(art.Size())))},
		}))
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "", "target container: webp, png or jpeg")
	convertCmd.Flags().StringVarP(&convertOutputDir, "output", "o", "lumen-out", "destination folder")
	_ = convertCmd.MarkFlagRequired("format")

	rootCmd.AddCommand(convertCmd)
}
