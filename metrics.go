package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics bundles the facade's internal instrumentation. It is registered
// on a private prometheus.Registry — never prometheus.DefaultRegisterer —
// so that building a Classifier never reaches for a network endpoint; the
// core has none (see the external-interfaces note that no network
// endpoints are part of the core). Classifier.MetricsRegistry exposes the
// registry so a collaborator outside the core may choose to scrape it.
type metrics struct {
	registry *prometheus.Registry

	outcomes             *prometheus.CounterVec
	classifyLatency      prometheus.Histogram
	writes               *prometheus.CounterVec
	prefilterRebuilds    prometheus.Counter
	prefilterSaturations prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()

	m := &metrics{
		registry: reg,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classifier",
			Name:      "outcomes_total",
			Help:      "Classification outcomes by result.",
		}, []string{"result"}),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classifier",
			Name:      "classify_latency_seconds",
			Help:      "Per-packet classify() latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classifier",
			Name:      "writes_total",
			Help:      "Write-path operations by operation and result code.",
		}, []string{"op", "code"}),
		prefilterRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classifier",
			Name:      "prefilter_rebuilds_total",
			Help:      "Number of times the negative prefilter was rebuilt.",
		}),
		prefilterSaturations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classifier",
			Name:      "prefilter_saturations_total",
			Help:      "Number of rebuilds triggered by the prefilter running out of selectivity.",
		}),
	}
	reg.MustRegister(m.outcomes, m.classifyLatency, m.writes, m.prefilterRebuilds, m.prefilterSaturations)
	return m
}

const (
	outcomeMatched            = "matched"
	outcomeUnmatched          = "unmatched"
	outcomePrefilterRejected  = "prefilter_rejected"
)

// MetricsRegistry returns the facade's private prometheus registry. The
// core itself never serves it over HTTP; a caller that wants /metrics
// exposure wires promhttp.HandlerFor(registry, ...) outside the core.
func (c *Classifier) MetricsRegistry() *prometheus.Registry {
	return c.metrics.registry
}
