package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lumen/internal/config"
	"lumen/internal/genai"
	"lumen/internal/history"
	"lumen/internal/logging"
	"lumen/internal/metrics"
	"lumen/internal/pipeline"
	"lumen/internal/raster"
	"lumen/internal/remote"
)

var (
	configPath  string
	logLevel    string
	metricsFile string

	cfg      *config.Config
	logger   = zap.NewNop()
	recorder *metrics.Recorder
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "lumen - compress, enhance and back up photos",
	Long:  "lumen recompresses or sharpens images, keeps a local history of results and syncs it with a WebDAV store as zip backups.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("config %s: %w", configPath, err)
		}
		cfg = loaded

		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		if logger, err = logging.New(level); err != nil {
			return err
		}

		if metricsFile == "" {
			metricsFile = cfg.Metrics.Textfile
		}
		recorder = metrics.New()
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the command line and then flushes logs and metrics, also
// when the command failed.
func execute(args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	_ = logger.Sync()
	if werr := recorder.WriteTextfile(metricsFile); werr != nil {
		return errors.Join(err, werr)
	}
	return err
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
}

func newProcessor() *pipeline.Processor {
	opts := []pipeline.Option{
		pipeline.WithDecoder(raster.NewDecoder(cfg.Processing.MaxDimension)),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(recorder),
	}
	if cfg.AI.APIKey != "" {
		client := genai.NewClient(cfg.AI.APIKey,
			genai.WithEndpoint(cfg.AI.Endpoint),
			genai.WithModel(cfg.AI.Model),
			genai.WithAnalysisModel(cfg.AI.AnalysisModel),
			genai.WithLogger(logger),
		)
		opts = append(opts, pipeline.WithGenerator(client, cfg.AI.Prompt), pipeline.WithAnalyzer(client))
	}
	return pipeline.NewProcessor(opts...)
}

func openHistory() (*history.Store, error) {
	return history.Open(cfg.History.Dir, logger)
}

func newRemoteClient() (*remote.Client, error) {
	if cfg.Remote.URL == "" {
		return nil, fmt.Errorf("no WebDAV store configured: set remote.url in %s or LUMEN_WEBDAV_URL", configPath)
	}
	relay := remote.NewHTTPRelay(nil, cfg.Remote.UploadLimit)
	return remote.NewClient(remote.Config{
		URL:       cfg.Remote.URL,
		Username:  cfg.Remote.Username,
		Password:  cfg.Remote.Password,
		Directory: cfg.Remote.Directory,
	}, relay, remote.WithLogger(logger), remote.WithObserver(recorder)), nil
}
