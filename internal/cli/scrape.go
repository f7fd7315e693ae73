package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"PriceWatch/internal/ingest"
)

// ScrapeOptions holds flags for the scrape command.
type ScrapeOptions struct {
	*RootOptions
	DryRun bool
}

func NewScrapeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScrapeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run a single ingestion cycle",
		Long: `Fetch the configured catalog once and store new (name, price) pairs.

With --dry-run the observations are printed as JSON and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print observations instead of storing them")

	return cmd
}

func runScrape(ctx context.Context, opts *ScrapeOptions, out io.Writer) error {
	cfg, log, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ext, release, err := newExtractor(cfg.Scrape, log)
	if err != nil {
		return err
	}
	defer release()

	if opts.DryRun {
		obs, err := ext.Extract(ctx, cfg.Scrape.BaseURL, cfg.Scrape.Path)
		if err != nil {
			return fmt.Errorf("scrape: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ingest.Dedupe(obs))
	}

	store, err := openStore(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	loop := &ingest.Loop{
		Store:     store,
		Extractor: ext,
		BaseURL:   cfg.Scrape.BaseURL,
		Path:      cfg.Scrape.Path,
		Log:       log.Named("ingest"),
	}

	res := loop.RunOnce(ctx)
	if res.Err != nil {
		return fmt.Errorf("scrape cycle %s: %w", res.CycleID, res.Err)
	}
	log.Info("scrape done", zap.String("cycle_id", res.CycleID), zap.Int("inserted", res.Inserted))

	_, err = fmt.Fprintf(out, "fetched=%d unique=%d inserted=%d skipped=%d failed=%d\n",
		res.Fetched, res.Unique, res.Inserted, res.Skipped, res.Failed)
	return err
}
