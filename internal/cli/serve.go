package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PriceWatch/internal/ingest"
	"PriceWatch/internal/prices"
	"PriceWatch/pkg/kit"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ingestion loop",
		Long: `Start the prices HTTP API and the background ingestion loop.

The first scrape runs immediately, then once per SCRAPE_INTERVAL. SIGINT
or SIGTERM drains in-flight requests and stops the loop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := openStore(ctx, cfg.DB)
	if err != nil {
		log.Error("store init failed", zap.String("driver", cfg.DB.Driver), zap.Error(err))
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}()
	log.Info("store ready", zap.String("driver", store.Dialect()))

	ext, release, err := newExtractor(cfg.Scrape, log)
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := prices.NewHandler(&prices.Server{Store: store, Log: log}, prices.HTTPDeps{
		Log:            log,
		Service:        serviceName,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})

	loop := &ingest.Loop{
		Store:     store,
		Extractor: ext,
		BaseURL:   cfg.Scrape.BaseURL,
		Path:      cfg.Scrape.Path,
		Interval:  cfg.Scrape.Interval,
		Log:       log.Named("ingest"),
		Metrics:   ingest.NewMetrics(reg),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return kit.RunHTTPServer(gctx, ":"+cfg.Port, handler, log, cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("pricewatch stopped", zap.Error(err))
		return err
	}
	log.Info("pricewatch stopped")
	return nil
}
