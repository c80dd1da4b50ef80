package override

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tenantgate/internal/domain/audit"
)

var (
	// OverridesTotal counts override calls by terminal outcome (or denial).
	OverridesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_admin_overrides_total",
			Help: "Admin override calls by outcome",
		},
		[]string{"outcome"},
	)

	// OverrideDuration measures the guarded window, configure to clear.
	OverrideDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_admin_override_duration_seconds",
			Help:    "Duration of admin override windows",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func observe(outcome audit.Outcome, d time.Duration) {
	OverridesTotal.WithLabelValues(string(outcome)).Inc()
	if outcome.IsTerminal() {
		OverrideDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
	}
}
