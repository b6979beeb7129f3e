// Package metrics wires the gateway's runtime counters into
// Prometheus, grounded on the teacher's promauto-based adminMetrics
// (metrics.go).
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide set of counters and gauges the
// dispatcher and upstream selector update.
type Metrics struct {
	requests *prometheus.CounterVec
	cursors  *prometheus.GaugeVec
}

// New registers the gatewd metrics with reg. Passing nil registers
// against the default global registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	const namespace = "gatewd"

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Requests handled by the dispatcher, labeled by listening port and outcome.",
		}, []string{"port", "outcome"}),
		cursors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "cursor_index",
			Help:      "Target index most recently selected for each route.",
		}, []string{"port", "host_key", "path_key"}),
	}
}

// ObserveResult records one dispatched request's outcome. m may be nil
// since metrics are optional; a nil receiver is a no-op.
func (m *Metrics) ObserveResult(port int, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(port), outcome).Inc()
}

// ObserveCursor records the target index a round-robin selection just
// used (the cursor value before it advanced) (spec §4.7).
func (m *Metrics) ObserveCursor(port int, hostKey, pathKey string, index int) {
	if m == nil {
		return
	}
	m.cursors.WithLabelValues(strconv.Itoa(port), hostKey, pathKey).Set(float64(index))
}
