package ingest

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"PriceWatch/internal/extractor"
)

const (
	resultOK         = "ok"
	resultFetchError = "fetch_error"
	resultCancelled  = "cancelled"
	resultPanic      = "panic"
	resultStoreError = "store_error"
	resultPartial    = "partial"
	resultError      = "error"
)

type Metrics struct {
	Cycles      *prometheus.CounterVec
	Items       *prometheus.CounterVec
	Duration    prometheus.Histogram
	LastSuccess prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_cycles_total",
				Help: "Ingestion cycles by result",
			},
			[]string{"result"},
		),
		Items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_items_total",
				Help: "Scraped items by outcome",
			},
			[]string{"outcome"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_cycle_duration_seconds",
				Help:    "Wall time of one ingestion cycle",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_last_success_timestamp_seconds",
				Help: "Unix time of the last cycle with no error and no failed item",
			},
		),
	}

	reg.MustRegister(m.Cycles, m.Items, m.Duration, m.LastSuccess)
	return m
}

func (m *Metrics) observe(res CycleResult) {
	if m == nil {
		return
	}

	result := cycleResult(res)
	m.Cycles.WithLabelValues(result).Inc()
	m.Items.WithLabelValues("inserted").Add(float64(res.Inserted))
	m.Items.WithLabelValues("skipped").Add(float64(res.Skipped + res.Fetched - res.Unique))
	m.Items.WithLabelValues("failed").Add(float64(res.Failed))
	m.Duration.Observe(res.Duration.Seconds())

	if result == resultOK {
		m.LastSuccess.SetToCurrentTime()
	}
}

// cycleResult labels a cycle. Only a cycle with no error and no failed
// item counts as ok.
func cycleResult(res CycleResult) string {
	err := res.Err
	switch {
	case err == nil && res.Failed > 0:
		return resultPartial
	case err == nil:
		return resultOK
	case errors.Is(err, ErrStore):
		return resultStoreError
	case errors.Is(err, ErrPanic):
		return resultPanic
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resultCancelled
	case errors.Is(err, extractor.ErrFetch):
		return resultFetchError
	default:
		return resultError
	}
}
