package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"inspectra/internal/config"
	"inspectra/internal/crawler"
	"inspectra/internal/storage"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspectra",
		Short: "Breadth-first site discovery crawler",
		Long: `Inspectra maps a web application by crawling it breadth-first from a seed URL
in a real browser, classifying each page and recording how pages were discovered.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (default: "+config.DefaultPath()+")")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the --config file and applies --verbose.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func buildLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	return crawler.BuildLogger(cfg.Logging, w)
}

// openStore opens the configured result store, or returns nil when
// persistence is disabled.
func openStore(cfg *config.Config, logger *slog.Logger) (*storage.SQLStore, error) {
	if cfg.Storage.Driver == "" {
		return nil, nil
	}
	store, err := storage.NewSQLStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	logger.Info("result storage enabled", "driver", cfg.Storage.Driver)
	return store, nil
}
