package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"lumen/internal/pipeline"
	"lumen/internal/record"
	"lumen/internal/tui"
	"lumen/pkg/imgutil"
)

var (
	exportOutputDir string
	exportOriginal  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage saved results",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved records, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		records, err := store.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), historyDimStyle.Render("history is empty"))
			return nil
		}

		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				r.ID,
				r.CreatedAt.Format("2006-01-02 15:04"),
				r.OriginalName,
				describeMode(r),
				tui.FormatBytes(r.OriginalSize()),
				tui.FormatBytes(r.ProcessedSize()),
				r.ChangeLabel(),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderTable(
			[]string{"ID", "Saved", "Name", "Mode", "Original", "Processed", "Change"}, rows))
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		r, err := store.Get(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, historyFileStyle.Render(r.OriginalName))
		rows := []tui.SummaryRow{
			{Label: "ID", Value: r.ID},
			{Label: "Saved", Value: r.CreatedAt.Format("2006-01-02 15:04:05")},
			{Label: "Mode", Value: describeMode(r)},
			{Label: "Setting", Value: describeSetting(r)},
			{Label: "Format", Value: fmt.Sprintf("%s -> %s (%s requested)", r.OriginalType, r.ProcessedType, r.OutputFormat)},
			{Label: "Size", Value: fmt.Sprintf("%s -> %s (%s)", tui.FormatBytes(r.OriginalSize()), tui.FormatBytes(r.ProcessedSize()), r.ChangeLabel())},
		}
		if r.AIModel != "" {
			rows = append(rows, tui.SummaryRow{Label: "Model", Value: r.AIModel})
		}
		fmt.Fprintln(out, tui.RenderSummary(rows))

		printDetail(out, "Model notes", nonEmpty(r.AIText))
		if r.Analysis != nil {
			printDetail(out, "Description", nonEmpty(r.Analysis.Description))
			printDetail(out, "Tags", r.Analysis.Tags)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete saved records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		if err := store.Delete(args...); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("deleted %d record(s)", len(args))))
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <id>...",
	Short: "Write the processed image of saved records to a folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(exportOutputDir, 0o755); err != nil {
			return err
		}
		for _, id := range args {
			r, err := store.Get(id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			dest := pipeline.OutputPath(exportOutputDir, r.OriginalName, imgutil.KindFromMime(r.ProcessedType))
			if err := os.WriteFile(dest, r.ProcessedBytes, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", r.ID, dest)

			if exportOriginal {
				orig := filepath.Join(exportOutputDir, "original-"+filepath.Base(r.OriginalName))
				if err := os.WriteFile(orig, r.OriginalBytes, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", r.ID, orig)
			}
		}
		return nil
	},
}

func describeMode(r *record.Record) string {
	if r.Mode == record.ModeEnhance {
		return "enhance/" + string(r.EnhanceMethod)
	}
	return string(r.Mode)
}

func describeSetting(r *record.Record) string {
	if r.QualityUsed == record.GeneratedQuality {
		return "generated"
	}
	if r.Mode == record.ModeEnhance {
		return fmt.Sprintf("intensity %.2f", r.QualityUsed)
	}
	return fmt.Sprintf("quality %.2f", r.QualityUsed)
}

func nonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}

func printDetail(out io.Writer, category string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(out, "  %s\n", historyCategoryStyle.Render(category+":"))
	for _, value := range values {
		fmt.Fprintf(out, "    %s %s\n", historyBulletStyle.Render("-"), historyValueStyle.Render(value))
	}
}

var (
	historyFileStyle     = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	historyCategoryStyle = lipgloss.NewStyle().Foreground(tui.ColorAccentAlt)
	historyValueStyle    = lipgloss.NewStyle().Foreground(tui.ColorInk)
	historyDimStyle      = lipgloss.NewStyle().Foreground(tui.ColorDim)
	historyBulletStyle   = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	historyExportCmd.Flags().StringVarP(&exportOutputDir, "output", "o", "lumen-export", "destination folder")
	historyExportCmd.Flags().BoolVar(&exportOriginal, "original", false, "also write the original upload")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
