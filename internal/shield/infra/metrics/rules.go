package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Rules is the Prometheus implementation of rules.Metrics.
type Rules struct {
	compiles  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	rules     *prometheus.GaugeVec
	published prometheus.Counter
	tokens    prometheus.Counter
}

// NewRules registers the rules metrics in reg.
func NewRules(namespace string, reg prometheus.Registerer) (*Rules, error) {
	const (
		compilesTotal   = "compiles_total"
		compileDuration = "compile_duration_seconds"
		rulesCount      = "rules_count"
		publishedTotal  = "updates_published_total"
		tokensTotal     = "completion_tokens_total"
	)

	m := &Rules{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      compilesTotal,
			Subsystem: subsystemRules,
			Namespace: namespace,
			Help:      "Total number of ruleset compile attempts by outcome.",
		}, []string{"ruleset", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      compileDuration,
			Subsystem: subsystemRules,
			Namespace: namespace,
			Help:      "Time spent bringing a ruleset up to date.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		}, []string{"ruleset"}),
		rules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      rulesCount,
			Subsystem: subsystemRules,
			Namespace: namespace,
			Help:      "Number of rules in the current artifact of each ruleset.",
		}, []string{"ruleset"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      publishedTotal,
			Subsystem: subsystemRules,
			Namespace: namespace,
			Help:      "Total number of update events emitted by the rules manager.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      tokensTotal,
			Subsystem: subsystemRules,
			Namespace: namespace,
			Help:      "Total number of completion tokens delivered in update events.",
		}),
	}

	err := register(reg,
		namedCollector{compilesTotal, m.compiles},
		namedCollector{compileDuration, m.duration},
		namedCollector{rulesCount, m.rules},
		namedCollector{publishedTotal, m.published},
		namedCollector{tokensTotal, m.tokens},
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveCompile implements rules.Metrics.
func (m *Rules) ObserveCompile(ruleset, outcome string, seconds float64) {
	m.compiles.WithLabelValues(ruleset, outcome).Inc()
	m.duration.WithLabelValues(ruleset).Observe(seconds)
}

// SetRules implements rules.Metrics.
func (m *Rules) SetRules(ruleset string, n int) {
	m.rules.WithLabelValues(ruleset).Set(float64(n))
}

// IncPublished implements rules.Metrics.
func (m *Rules) IncPublished(tokens int) {
	m.published.Inc()
	m.tokens.Add(float64(tokens))
}
