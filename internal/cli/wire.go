package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"PriceWatch/internal/config"
	"PriceWatch/internal/extractor"
	"PriceWatch/internal/prices"
	"PriceWatch/pkg/kit"
)

func loadConfig(opts *RootOptions) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, kit.NewLogger(serviceName, cfg.LogLevel), nil
}

func openStore(ctx context.Context, db config.DBConfig) (*prices.DBStore, error) {
	switch db.Driver {
	case config.DriverPostgres:
		return prices.OpenPostgres(ctx, db.URL)
	default:
		return prices.OpenSQLite(ctx, db.Path)
	}
}

// newExtractor returns the configured extractor and a func releasing the
// resources held by its fetcher.
func newExtractor(sc config.ScrapeConfig, log *zap.Logger) (*extractor.HTMLExtractor, func(), error) {
	var (
		fetcher extractor.Fetcher
		release = func() {}
	)

	switch sc.Fetcher {
	case config.FetcherBrowser:
		bf := extractor.NewBrowserFetcher(sc.Headless, sc.Timeout)
		fetcher = bf
		release = func() {
			if err := bf.Close(); err != nil {
				log.Warn("browser close failed", zap.Error(err))
			}
		}
	case config.FetcherHTTP:
		fetcher = extractor.NewHTTPFetcher(sc.Timeout, sc.UserAgent)
	default:
		return nil, nil, fmt.Errorf("unknown fetcher %q", sc.Fetcher)
	}

	return &extractor.HTMLExtractor{
		Fetcher:   fetcher,
		Selectors: sc.Selectors.Extractor(),
		MaxPages:  sc.MaxPages,
		Log:       log,
	}, release, nil
}
