// Package ingest runs the periodic scrape-and-store cycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"PriceWatch/internal/extractor"
	"PriceWatch/internal/prices"
)

const DefaultInterval = 12 * time.Hour

var (
	// ErrPanic reports a cycle aborted by a panic in the extractor or store.
	ErrPanic = errors.New("ingest cycle panicked")
	// ErrStore reports a cycle in which no observation reached the store.
	ErrStore = errors.New("store rejected every observation")
)

// Loop alternates between fetching the catalog and sleeping for Interval.
// It shares Store with the HTTP handlers and never talks to them directly.
type Loop struct {
	Store     prices.Store
	Extractor extractor.Extractor
	BaseURL   string
	Path      string
	Interval  time.Duration
	Log       *zap.Logger
	Metrics   *Metrics
}

// CycleResult summarizes one fetch-and-store pass. Fetched counts raw
// observations, Unique what is left after in-batch dedup; Skipped counts
// pairs already present in the store.
type CycleResult struct {
	CycleID  string
	Fetched  int
	Unique   int
	Inserted int
	Skipped  int
	Failed   int
	Duration time.Duration
	Err      error
}

// Run executes a cycle immediately and then one per Interval until ctx is
// cancelled. Cycle failures are logged and never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res := l.RunOnce(ctx)
		l.logger().Info("ingest sleeping",
			zap.String("cycle_id", res.CycleID),
			zap.Duration("interval", interval),
			zap.Time("next_run", time.Now().Add(interval)),
		)

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce performs a single cycle. It never panics and never returns an
// error to the caller; the outcome is reported in the result.
func (l *Loop) RunOnce(ctx context.Context) (res CycleResult) {
	res.CycleID = uuid.NewString()
	log := l.logger().With(zap.String("cycle_id", res.CycleID))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanic, p)
			log.Error("ingest cycle panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
		res.Duration = time.Since(start)
		l.Metrics.observe(res)

		log.Info("ingest cycle finished",
			zap.Int("fetched", res.Fetched),
			zap.Int("unique", res.Unique),
			zap.Int("inserted", res.Inserted),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", res.Duration),
			zap.Bool("ok", res.Err == nil),
		)
	}()

	log.Info("ingest cycle started", zap.String("base_url", l.BaseURL), zap.String("path", l.Path))

	obs, err := l.Extractor.Extract(ctx, l.BaseURL, l.Path)
	if err != nil {
		res.Err = err
		logExtractError(log, err)
		return res
	}
	res.Fetched = len(obs)

	batch := Dedupe(obs)
	res.Unique = len(batch)

	for _, o := range batch {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		exists, err := l.Store.Exists(ctx, o.Name, o.Price)
		if err != nil {
			res.Failed++
			log.Warn("existence check failed", zap.String("name", o.Name), zap.Int64("price", o.Price), zap.Error(err))
			continue
		}
		if exists {
			res.Skipped++
			log.Debug("duplicate skipped", zap.String("name", o.Name), zap.Int64("price", o.Price))
			continue
		}

		if _, err := l.Store.Insert(ctx, o.Name, o.Price); err != nil {
			res.Failed++
			log.Error("insert failed", zap.String("name", o.Name), zap.Int64("price", o.Price), zap.Error(err))
			continue
		}
		res.Inserted++
	}

	if res.Failed > 0 && res.Inserted+res.Skipped == 0 {
		res.Err = fmt.Errorf("%w: %d failed", ErrStore, res.Failed)
	}
	return res
}

// Dedupe drops repeated (name, price) pairs, keeping the first occurrence.
func Dedupe(obs []extractor.Observation) []extractor.Observation {
	seen := make(map[extractor.Observation]struct{}, len(obs))
	out := make([]extractor.Observation, 0, len(obs))
	for _, o := range obs {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

func logExtractError(log *zap.Logger, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("scrape interrupted", zap.Error(err))
	case errors.Is(err, extractor.ErrFetch):
		log.Warn("scrape failed, retrying next cycle", zap.Error(err))
	default:
		log.Error("scrape failed with unexpected error", zap.Error(err), zap.Stack("stack"))
	}
}

func (l *Loop) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}
