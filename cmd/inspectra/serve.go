package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"inspectra/internal/api"
	"inspectra/internal/crawler"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Crawls are started with POST /api/crawl and stream their
progress as Server-Sent Events. Interrupting the server stops running crawls.`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
	cmd.Flags().String("addr", "", "HTTP listen address (default from config)")
	cmd.Flags().Int("max-concurrency", 0, "Maximum concurrent crawls (default from config)")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if n, _ := cmd.Flags().GetInt("max-concurrency"); n > 0 {
		cfg.Server.MaxConcurrency = n
	}
	logger, err := buildLogger(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	opts := []crawler.Option{crawler.WithLogger(logger)}
	var runs api.RunStore
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, crawler.WithStore(store))
		runs = store
	}
	engine, err := crawler.NewEngine(*cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	manager := api.NewCrawlManager(gctx, engine, cfg.Server.MaxConcurrency, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(*cfg, manager, engine.Results(), runs, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("api server listening", "addr", cfg.Server.Addr, "max_concurrency", cfg.Server.MaxConcurrency)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		manager.Wait()
		return nil
	})

	err = g.Wait()
	logger.Info("api server stopped")
	return err
}
