package stats

import (
	"expvar"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/planhub/messaging/internal/testutil"
)

func TestNewStatsUpdater(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux(), testutil.TestLogger(t))
	assert.NotNil(t, su, "expected stats updater to be non-nil")
	assert.NotNil(t, su.vars, "expected vars map to be initialized")
	assert.NotNil(t, su.vars.Get("Uptime"), "expected Uptime metric to be registered")
}

func TestUnregisteredMetricIsSkipped(t *testing.T) {
	// Built by hand to avoid re-registering the exported expvar map.
	su := &StatsUpdater{
		log:        testutil.TestLogger(t),
		vars:       new(expvar.Map).Init(),
		updateChan: make(chan *metricsUpdateReq, 8),
	}
	su.RegisterMetric("Known")

	su.Incr("Unknown")
	su.Incr("Known")
	su.Stop()
	su.updateMetrics()

	assert.Equal(t, "1", su.vars.Get("Known").String(), "expected the registered metric to still update")
}
