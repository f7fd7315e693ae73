// Package config assembles runtime settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"PriceWatch/internal/extractor"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

type Config struct {
	Port            string        `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	DB      DBConfig      `yaml:"db"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

type ScrapeConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Path      string        `yaml:"path"`
	Interval  time.Duration `yaml:"interval"`
	Fetcher   string        `yaml:"fetcher"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxPages  int           `yaml:"max_pages"`
	UserAgent string        `yaml:"user_agent"`
	Headless  bool          `yaml:"headless"`
	Selectors Selectors     `yaml:"selectors"`
}

type Selectors struct {
	Item  string `yaml:"item"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Next  string `yaml:"next"`
}

func (s Selectors) Extractor() extractor.Selectors {
	return extractor.Selectors{Item: s.Item, Name: s.Name, Price: s.Price, Next: s.Next}
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

func Default() Config {
	sel := extractor.DefaultSelectors()
	return Config{
		Port:            "8000",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		DB: DBConfig{
			Driver: DriverSQLite,
			Path:   "prices.db",
		},
		Scrape: ScrapeConfig{
			BaseURL:   "https://www.maxidom.ru/",
			Path:      "catalog/kruzhki/",
			Interval:  12 * time.Hour,
			Fetcher:   FetcherHTTP,
			Timeout:   30 * time.Second,
			MaxPages:  10,
			UserAgent: extractor.DefaultUserAgent,
			Headless:  true,
			Selectors: Selectors{Item: sel.Item, Name: sel.Name, Price: sel.Price, Next: sel.Next},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load returns defaults overlaid with the YAML file at path (skipped when
// path is empty) and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := env{lookup: lookup}

	e.str("PORT", &cfg.Port)
	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.dur("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	e.str("DB_DRIVER", &cfg.DB.Driver)
	e.str("DB_PATH", &cfg.DB.Path)
	e.str("DATABASE_URL", &cfg.DB.URL)

	e.str("SCRAPE_BASE_URL", &cfg.Scrape.BaseURL)
	e.str("SCRAPE_PATH", &cfg.Scrape.Path)
	e.dur("SCRAPE_INTERVAL", &cfg.Scrape.Interval)
	e.str("SCRAPE_FETCHER", &cfg.Scrape.Fetcher)
	e.dur("SCRAPE_TIMEOUT", &cfg.Scrape.Timeout)
	e.integer("SCRAPE_MAX_PAGES", &cfg.Scrape.MaxPages)
	e.str("SCRAPE_USER_AGENT", &cfg.Scrape.UserAgent)
	e.boolean("SCRAPE_HEADLESS", &cfg.Scrape.Headless)

	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.str("METRICS_TOKEN", &cfg.Metrics.Token)

	return errors.Join(e.errs...)
}

func (c Config) Validate() error {
	var errs []error

	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("port %q is not a valid port number", c.Port))
	}

	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			errs = append(errs, errors.New("db path is required for sqlite"))
		}
	case DriverPostgres:
		if c.DB.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DB.Driver))
	}

	switch c.Scrape.Fetcher {
	case FetcherHTTP, FetcherBrowser:
	default:
		errs = append(errs, fmt.Errorf("unknown fetcher %q", c.Scrape.Fetcher))
	}

	if c.Scrape.BaseURL == "" {
		errs = append(errs, errors.New("scrape base url is required"))
	}
	if c.Scrape.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scrape interval must be positive, got %s", c.Scrape.Interval))
	}
	if c.Scrape.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("scrape max pages must be positive, got %d", c.Scrape.MaxPages))
	}
	if c.Scrape.Selectors.Item == "" || c.Scrape.Selectors.Name == "" || c.Scrape.Selectors.Price == "" {
		errs = append(errs, errors.New("item, name and price selectors are required"))
	}

	return errors.Join(errs...)
}

// env applies variables that are set and non-empty, collecting parse errors.
type env struct {
	lookup lookupFunc
	errs   []error
}

func (e *env) get(k string) (string, bool) {
	v, ok := e.lookup(k)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *env) str(k string, dst *string) {
	if v, ok := e.get(k); ok {
		*dst = v
	}
}

func (e *env) integer(k string, dst *int) {
	v, ok := e.get(k)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
		return
	}
	*dst = n
}

func (e *env) dur(k string, dst *time.Duration) {
	v, ok := e.get(k)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
		return
	}
	*dst = d
}

func (e *env) boolean(k string, dst *bool) {
	v, ok := e.get(k)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
		return
	}
	*dst = b
}
