// Package metrics contains the Prometheus implementations of the metrics
// interfaces declared by the services.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the default metric namespace.
const Namespace = "shield"

const (
	subsystemRules    = "rules"
	subsystemUpdating = "updating"
	subsystemTracker  = "trackerdata"
)

type namedCollector struct {
	name string
	c    prometheus.Collector
}

func register(reg prometheus.Registerer, cs ...namedCollector) error {
	var errs []error
	for _, c := range cs {
		if err := reg.Register(c.c); err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
