package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Updating is the Prometheus implementation of updating.Metrics.
type Updating struct {
	publishes   *prometheus.CounterVec
	subscribers prometheus.Gauge
	sequence    prometheus.Gauge
}

// NewUpdating registers the assets pipeline metrics in reg.
func NewUpdating(namespace string, reg prometheus.Registerer) (*Updating, error) {
	const (
		publishesTotal = "publishes_total"
		subscribers    = "subscribers"
		sequence       = "sequence"
	)

	m := &Updating{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      publishesTotal,
			Subsystem: subsystemUpdating,
			Namespace: namespace,
			Help:      "Total number of published content blocking assets by trigger.",
		}, []string{"trigger"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      subscribers,
			Subsystem: subsystemUpdating,
			Namespace: namespace,
			Help:      "Number of live assets subscribers.",
		}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      sequence,
			Subsystem: subsystemUpdating,
			Namespace: namespace,
			Help:      "Sequence number of the latest publish.",
		}),
	}

	err := register(reg,
		namedCollector{publishesTotal, m.publishes},
		namedCollector{subscribers, m.subscribers},
		namedCollector{sequence, m.sequence},
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ObservePublish implements updating.Metrics.
func (m *Updating) ObservePublish(trigger string, seq uint64) {
	m.publishes.WithLabelValues(trigger).Inc()
	m.sequence.Set(float64(seq))
}

// SetSubscribers implements updating.Metrics.
func (m *Updating) SetSubscribers(n int) { m.subscribers.Set(float64(n)) }
