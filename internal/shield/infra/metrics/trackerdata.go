package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata"
)

// NewTrackerData registers gauges that read m.Stats() at scrape time.
func NewTrackerData(namespace string, reg prometheus.Registerer, m *trackerdata.Manager) error {
	gauge := func(name, help string, f func(trackerdata.Stats) float64) namedCollector {
		return namedCollector{name, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:      name,
			Subsystem: subsystemTracker,
			Namespace: namespace,
			Help:      help,
		}, func() float64 { return f(m.Stats()) })}
	}

	return register(reg,
		gauge("generation", "Generation of the installed tracker dataset.",
			func(s trackerdata.Stats) float64 { return float64(s.Generation) }),
		gauge("fallback", "1 when the bundled fallback dataset is installed.",
			func(s trackerdata.Stats) float64 { return b2f(s.Fallback) }),
		gauge("trackers", "Number of trackers in the installed dataset.",
			func(s trackerdata.Stats) float64 { return float64(s.Trackers) }),
		gauge("entities", "Number of entities in the installed dataset.",
			func(s trackerdata.Stats) float64 { return float64(s.Entities) }),
		gauge("ambiguous_lookups", "Lookups where the CNAME and direct matches disagreed.",
			func(s trackerdata.Stats) float64 { return float64(s.AmbiguousLookups) }),
		gauge("cache_hits", "Lookup cache hits.",
			func(s trackerdata.Stats) float64 { return float64(s.CacheHits) }),
		gauge("cache_misses", "Lookup cache misses.",
			func(s trackerdata.Stats) float64 { return float64(s.CacheMisses) }),
	)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
