package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for sink writes.
var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_sink_writes_total",
		Help: "Total artifact writes by storage kind and result",
	}, []string{"kind", "result"})

	bytesWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_sink_bytes_written_total",
		Help: "Total bytes written by storage kind",
	}, []string{"kind"})
)
