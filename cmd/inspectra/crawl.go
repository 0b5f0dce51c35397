package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"inspectra/internal/crawler"
	"inspectra/internal/report"
	"inspectra/pkg/types"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a site and print the discovered page graph",
		Long: `Crawl a site breadth-first from the given URL. Lifecycle messages go to stderr;
the result is written to stdout or --output as JSON or Markdown.`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}
	cmd.Flags().IntP("max-pages", "p", 0, "Maximum pages to visit (default from config)")
	cmd.Flags().IntP("max-depth", "d", -1, "Maximum link depth from the seed (default from config)")
	cmd.Flags().BoolP("include-subdomains", "s", false, "Follow links to subdomains of the seed host")
	cmd.Flags().String("device", "", "Device profile: desktop, laptop, tablet or mobile")
	cmd.Flags().Bool("requires-auth", false, "Mark the target as requiring authentication")
	cmd.Flags().String("engine", "", "Browser engine override: chromedp or http")
	cmd.Flags().StringP("format", "f", report.FormatJSON, "Output format: json or markdown")
	cmd.Flags().StringP("output", "o", "", "Write the result to a file instead of stdout")
	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		cfg.Browser.Engine = strings.ToLower(engine)
	}
	logger, err := buildLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	req, err := crawlRequest(cmd, args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("output")
	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		fh, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer fh.Close()
		out = fh
	}
	writer, err := report.New(format, out)
	if err != nil {
		return err
	}

	opts := []crawler.Option{crawler.WithLogger(logger)}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, crawler.WithStore(store))
	}
	engine, err := crawler.NewEngine(*cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := engine.Crawl(ctx, req, narrate(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	return writer.Write(res)
}

func crawlRequest(cmd *cobra.Command, seed string) (types.CrawlConfig, error) {
	flags := cmd.Flags()
	req := types.CrawlConfig{SeedURL: seed}
	var err error
	if req.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return req, err
	}
	if req.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
		return req, err
	}
	if req.IncludeSubdomains, err = flags.GetBool("include-subdomains"); err != nil {
		return req, err
	}
	if req.DeviceProfile, err = flags.GetString("device"); err != nil {
		return req, err
	}
	if req.RequiresAuth, err = flags.GetBool("requires-auth"); err != nil {
		return req, err
	}
	return req, nil
}

// narrate prints log and error events as the crawl progresses.
func narrate(w io.Writer) crawler.ProgressSink {
	return crawler.SinkFunc(func(ev crawler.Event) {
		switch e := ev.(type) {
		case crawler.LogEvent:
			fmt.Fprintf(w, "[%s] %s\n", e.Level, e.Text)
		case crawler.ErrorEvent:
			fmt.Fprintf(w, "[error] %s\n", e.Message)
		}
	})
}
