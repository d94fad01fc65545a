package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pagination runs.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_pages_fetched_total",
		Help: "Total pages fetched by stream",
	}, []string{"stream"})

	recordsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_records_fetched_total",
		Help: "Total records fetched by stream",
	}, []string{"stream"})

	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_flushes_total",
		Help: "Total batch flushes by result (success, failure)",
	}, []string{"result"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_runs_total",
		Help: "Total walker runs by outcome (success, interrupted, failed)",
	}, []string{"outcome"})

	lastPageGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "extract_last_page",
		Help: "Last successfully fetched page by stream",
	}, []string{"stream"})
)
