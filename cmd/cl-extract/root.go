package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/Sternrassler/cl-extractor/internal/config"
	"github.com/Sternrassler/cl-extractor/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cli holds the state shared by all commands of one invocation.
type cli struct {
	cfgFile     string
	envFile     string
	metricsAddr string
	logLevel    string
	pretty      bool
	jsonOutput  bool

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "cl-extract",
		Short: "Resumable bulk extraction from the CourtListener API",
		Long: `cl-extract walks paginated CourtListener REST API endpoints and writes
the results as CSV files, locally or to S3.

Every stream checkpoints after each page, so an interrupted run resumes where
it stopped. Requests are budgeted per hour; when the budget is spent the run
sleeps until the window resets.

Example usage:
  cl-extract positions                     # Judicial positions, 20 pages per run
  cl-extract education --flush-threshold 10
  cl-extract dockets --author-id 1213      # All opinions written by one judge
  cl-extract run                           # Every job in .cl-extract.yaml
  cl-extract checkpoint show positions`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is .cl-extract.yaml)")
	flags.StringVar(&c.envFile, "env-file", "", "dotenv file with CLX_* variables (default is .env if present)")
	flags.StringVar(&c.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address, e.g. :9090")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&c.pretty, "pretty", false, "human-readable console logs")
	flags.BoolVar(&c.jsonOutput, "json", false, "print run summaries as JSON")

	rootCmd.AddCommand(
		c.newRunCmd(),
		c.newDatasetCmd("positions", "Fetch judicial positions"),
		c.newDatasetCmd("education", "Fetch judges' education records"),
		c.newDatasetCmd("disclosures", "Fetch financial disclosures"),
		c.newDocketsCmd(),
		c.newCheckpointCmd(),
	)

	return rootCmd
}

// init loads the environment, the configuration and the logger.
func (c *cli) init() error {
	if err := loadEnvFile(c.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags override the file and environment
	if c.metricsAddr != "" {
		cfg.Metrics.Addr = c.metricsAddr
	}
	if c.logLevel != "" {
		cfg.Logging.Level = logging.LogLevel(c.logLevel)
	}
	if c.pretty {
		cfg.Logging.Pretty = true
	}

	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	c.logCloser = closer

	c.logger.Debug().
		Str("base_url", cfg.API.BaseURL).
		Str("storage", cfg.Storage.Kind).
		Str("checkpoints", cfg.Checkpoint.Backend).
		Str("ratelimit", cfg.RateLimit.Backend).
		Int("jobs", len(cfg.Jobs)).
		Msg("Configuration loaded")

	return nil
}

func (c *cli) close() error {
	if c.logCloser == nil {
		return nil
	}
	return c.logCloser.Close()
}

// loadEnvFile loads path, or .env when path is empty. A missing default
// file is not an error. Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
