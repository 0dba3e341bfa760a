package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata"
)

func TestRules(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewRules(Namespace, reg)
	require.NoError(t, err)

	m.ObserveCompile("test", "compiled", 0.2)
	m.ObserveCompile("test", "unchanged", 0)
	m.ObserveCompile("test", "unchanged", 0)
	m.SetRules("test", 42)
	m.IncPublished(3)
	m.IncPublished(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.compiles.WithLabelValues("test", "compiled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.compiles.WithLabelValues("test", "unchanged")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.rules.WithLabelValues("test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.published))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tokens))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	_, err = NewRules(Namespace, reg)
	assert.ErrorContains(t, err, "compiles_total")
}

func TestUpdating(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewUpdating(Namespace, reg)
	require.NoError(t, err)

	m.ObservePublish("rules", 1)
	m.ObservePublish("settings", 2)
	m.SetSubscribers(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("settings")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sequence))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.subscribers))
}

func TestTrackerData(t *testing.T) {
	reg := prometheus.NewRegistry()
	mgr := trackerdata.New(trackerdata.Options{})
	require.NoError(t, NewTrackerData(Namespace, reg, mgr))

	n, err := testutil.GatherAndCount(reg, "shield_trackerdata_generation", "shield_trackerdata_trackers")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Error(t, NewTrackerData(Namespace, reg, mgr))
}
