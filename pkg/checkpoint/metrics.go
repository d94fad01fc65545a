package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckpointWrites tracks checkpoint saves by backend and result
	CheckpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_checkpoint_writes_total",
			Help: "Total number of checkpoint writes",
		},
		[]string{"backend", "result"}, // "file"|"redis", "ok"|"error"
	)

	// CheckpointFallbacks tracks loads that returned the default checkpoint
	CheckpointFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_checkpoint_fallbacks_total",
			Help: "Total number of checkpoint loads that fell back to the default",
		},
		[]string{"backend", "reason"}, // "missing", "malformed", "read_error"
	)
)
