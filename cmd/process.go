package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"lumen/internal/codec"
	"lumen/internal/compress"
	"lumen/internal/enhance"
	"lumen/internal/pipeline"
	"lumen/internal/record"
	"lumen/internal/tui"
	"lumen/pkg/imgutil"
)

type batchFlags struct {
	format    string
	outputDir string
	save      bool
	analyze   bool
	workers   int
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "output container: original, webp, png or jpeg")
	cmd.Flags().StringVarP(&f.outputDir, "output", "o", "", "destination folder for processed copies (default lumen-out unless --save)")
	cmd.Flags().BoolVar(&f.save, "save", false, "commit results to the local history")
	cmd.Flags().BoolVar(&f.analyze, "analyze", false, "describe and tag each image with the AI model")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "parallel workers (default from config, else one per CPU)")
}

func (f *batchFlags) outputFormat(cmd *cobra.Command) (codec.OutputFormat, error) {
	if cmd.Flags().Changed("format") {
		return codec.ParseOutputFormat(f.format)
	}
	return codec.ParseOutputFormat(cfg.Processing.OutputFormat)
}

var (
	compressFlags   batchFlags
	compressQuality float64
	compressEngine  string

	enhanceFlags     batchFlags
	enhanceIntensity float64
	enhanceMethod    string
	enhancePrompt    string
)

var compressCmd = &cobra.Command{
	Use:   "compress [flags] <path>",
	Short: "Recompress an image or a folder of images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := compressFlags.outputFormat(cmd)
		if err != nil {
			return err
		}
		quality := cfg.Processing.Quality
		if cmd.Flags().Changed("quality") {
			quality = compressQuality
		}
		engineName := cfg.Processing.Engine
		if cmd.Flags().Changed("engine") {
			engineName = compressEngine
		}
		engine, err := compress.ParseEngine(engineName)
		if err != nil {
			return err
		}

		params := pipeline.Params{Mode: record.ModeCompress, Engine: engine, Quality: quality, OutputFormat: format}
		return runBatch(cmd, args[0], params, &compressFlags)
	},
}

var enhanceCmd = &cobra.Command{
	Use:   "enhance [flags] <path>",
	Short: "Sharpen an image or regenerate it with the AI model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := enhanceFlags.outputFormat(cmd)
		if err != nil {
			return err
		}
		intensity := cfg.Processing.Intensity
		if cmd.Flags().Changed("intensity") {
			intensity = enhanceIntensity
		}
		methodName := cfg.Processing.EnhanceMethod
		if cmd.Flags().Changed("method") {
			methodName = enhanceMethod
		}
		method, err := enhance.ParseMethod(methodName)
		if err != nil {
			return err
		}
		if method == enhance.MethodAI && cfg.AI.APIKey == "" {
			return fmt.Errorf("the ai method needs an API key: set ai.api_key in %s or LUMEN_AI_API_KEY", configPath)
		}

		params := pipeline.Params{Mode: record.ModeEnhance, Method: method, Quality: intensity, OutputFormat: format, Prompt: enhancePrompt}
		return runBatch(cmd, args[0], params, &enhanceFlags)
	},
}

func runBatch(cmd *cobra.Command, path string, params pipeline.Params, flags *batchFlags) error {
	if flags.analyze && cfg.AI.APIKey == "" {
		return fmt.Errorf("--analyze needs an API key: set ai.api_key in %s or LUMEN_AI_API_KEY", configPath)
	}

	outputDir := flags.outputDir
	if outputDir == "" && !flags.save {
		outputDir = "lumen-out"
	}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return err
		}
	}

	workers := cfg.Processing.Workers
	if cmd.Flags().Changed("workers") {
		workers = flags.workers
	}
	opts := pipeline.Options{Params: params, Workers: workers, OutputDir: outputDir, Analyze: flags.analyze}
	if flags.save {
		store, err := openHistory()
		if err != nil {
			return err
		}
		opts.Save = store.Save
	}

	updates := make(chan pipeline.ProgressUpdate, 64)
	model := tui.NewModel("lumen "+string(params.Mode), params.Mode, updates)
	program := tea.NewProgram(model, tea.WithOutput(cmd.ErrOrStderr()))

	uiDone := make(chan struct{})
	go func() {
		_, _ = program.Run()
		close(uiDone)
	}()

	summary, results, err := newProcessor().Run(context.Background(), path, opts, updates)
	close(updates)
	<-uiDone
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	header := []string{"File", "Original", "Processed", "Change", "Requested", "Written"}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			rows = append(rows, []string{res.Display, "", "", tui.Failed("failed"), "", res.Err.Error()})
			continue
		}
		r := res.Record
		written := formatLabel(r.OutputFormat, r.ProcessedType)
		rows = append(rows, []string{
			res.Display,
			tui.FormatBytes(r.OriginalSize()),
			tui.FormatBytes(r.ProcessedSize()),
			tui.Change(r.ChangeLabel()),
			string(r.OutputFormat),
			written,
		})
	}
	fmt.Fprintln(out, tui.RenderTable(header, rows))

	fmt.Fprintln(out, tui.RenderSummary([]tui.SummaryRow{
		{Label: "Images processed", Value: fmt.Sprintf("%d", summary.Processed)},
		{Label: "Errors", Value: fmt.Sprintf("%d", summary.Errors)},
		{Label: "Total before", Value: tui.FormatBytes(summary.BytesIn)},
		{Label: "Total after", Value: tui.FormatBytes(summary.BytesOut)},
		{Label: "Overall change", Value: record.ChangeLabel(params.Mode, summary.BytesIn, summary.BytesOut)},
	}))

	if outputDir != "" {
		outPath := outputDir
		if abs, absErr := filepath.Abs(outputDir); absErr == nil {
			outPath = abs
		}
		fmt.Fprintf(out, "Processed files written to: %s\n", outPath)
	}
	if flags.save {
		fmt.Fprintln(out, tui.Success(fmt.Sprintf("%d record(s) saved to history", summary.Processed)))
	}
	if summary.Errors > 0 {
		return fmt.Errorf("%d image(s) failed", summary.Errors)
	}
	return nil
}

// formatLabel names the container actually written, flagging a mismatch
// with the requested one.
func formatLabel(requested codec.OutputFormat, mimeType string) string {
	actual := mimeType
	if f, ok := codec.FormatForKind(imgutil.KindFromMime(mimeType)); ok {
		actual = string(f)
	}
	if requested != codec.FormatOriginal && string(requested) != actual {
		return tui.Warn(actual + " (!)")
	}
	return actual
}

func init() {
	compressFlags.register(compressCmd)
	compressCmd.Flags().Float64VarP(&compressQuality, "quality", "q", 0.8, "quality in [0,1]")
	compressCmd.Flags().StringVar(&compressEngine, "engine", "algorithm", "compression engine: canvas or algorithm")

	enhanceFlags.register(enhanceCmd)
	enhanceCmd.Flags().Float64Var(&enhanceIntensity, "intensity", 0.5, "sharpening intensity in [0,1]")
	enhanceCmd.Flags().StringVar(&enhanceMethod, "method", "algorithm", "enhance method: algorithm or ai")
	enhanceCmd.Flags().StringVar(&enhancePrompt, "prompt", "", "prompt for the ai method (default from config)")

	rootCmd.AddCommand(compressCmd, enhanceCmd)
}
