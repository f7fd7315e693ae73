package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pricewatch.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DB.Driver)
	assert.Equal(t, "prices.db", cfg.DB.Path)
	assert.Equal(t, "https://www.maxidom.ru/", cfg.Scrape.BaseURL)
	assert.Equal(t, "catalog/kruzhki/", cfg.Scrape.Path)
	assert.Equal(t, 12*time.Hour, cfg.Scrape.Interval)
	assert.Equal(t, FetcherHTTP, cfg.Scrape.Fetcher)
	assert.Equal(t, 10, cfg.Scrape.MaxPages)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, lookupMap(map[string]string{
		"PORT":             "9090",
		"DB_DRIVER":        "postgres",
		"DATABASE_URL":     "postgres://u:p@localhost:5432/prices",
		"SCRAPE_INTERVAL":  "30m",
		"SCRAPE_MAX_PAGES": "3",
		"SCRAPE_HEADLESS":  "false",
		"METRICS_TOKEN":    "s3cret",
		"LOG_LEVEL":        "",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DB.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Scrape.Interval)
	assert.Equal(t, 3, cfg.Scrape.MaxPages)
	assert.False(t, cfg.Scrape.Headless)
	assert.Equal(t, "s3cret", cfg.Metrics.Token)
	assert.Equal(t, "info", cfg.LogLevel, "empty variables keep the current value")
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, lookupMap(map[string]string{
		"SCRAPE_INTERVAL":  "twelve hours",
		"SCRAPE_MAX_PAGES": "many",
		"METRICS_ENABLED":  "maybe",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "SCRAPE_INTERVAL")
	assert.ErrorContains(t, err, "SCRAPE_MAX_PAGES")
	assert.ErrorContains(t, err, "METRICS_ENABLED")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
port: "8100"
db:
  path: /var/lib/pricewatch/prices.db
scrape:
  interval: 6h
  fetcher: browser
  selectors:
    item: .product-card
    price: .product-card__price
`)
	t.Setenv("PORT", "8200")
	t.Setenv("SCRAPE_PATH", "catalog/chashki/")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8200", cfg.Port)
	assert.Equal(t, "/var/lib/pricewatch/prices.db", cfg.DB.Path)
	assert.Equal(t, 6*time.Hour, cfg.Scrape.Interval)
	assert.Equal(t, FetcherBrowser, cfg.Scrape.Fetcher)
	assert.Equal(t, "catalog/chashki/", cfg.Scrape.Path)
	assert.Equal(t, ".product-card", cfg.Scrape.Selectors.Item)
	assert.Equal(t, ".product-card__price", cfg.Scrape.Selectors.Price)
	assert.Equal(t, `[itemprop="name"]`, cfg.Scrape.Selectors.Name, "unset selector keeps default")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Scrape, cfg.Scrape)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeFile(t, "scrape:\n  intervall: 1h\n"))
	assert.ErrorContains(t, err, "intervall")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Port = "http" }, "port"},
		{"postgres without url", func(c *Config) { c.DB.Driver = DriverPostgres }, "DATABASE_URL"},
		{"unknown driver", func(c *Config) { c.DB.Driver = "mysql" }, "mysql"},
		{"unknown fetcher", func(c *Config) { c.Scrape.Fetcher = "curl" }, "curl"},
		{"zero interval", func(c *Config) { c.Scrape.Interval = 0 }, "interval"},
		{"no item selector", func(c *Config) { c.Scrape.Selectors.Item = "" }, "selectors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	for _, k := range []string{"PORT", "DB_DRIVER", "DB_PATH", "SCRAPE_BASE_URL", "SCRAPE_INTERVAL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(filepath.Join("..", "..", "pricewatch.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Scrape, cfg.Scrape)
	assert.Equal(t, Default().DB, cfg.DB)
}
