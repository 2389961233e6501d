package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordTransition(10*time.Millisecond, true)
	m.RecordTransition(30*time.Millisecond, true)
	m.RecordTransition(20*time.Millisecond, false)
	m.RecordRollback(3)
	m.RecordAdvisory(true)
	m.RecordAdvisory(false)
	m.RecordSync(5)
	m.RecordChildCreated()

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.Transitions)
	assert.Equal(t, int64(1), snap.TransitionFailures)
	assert.Equal(t, 20*time.Millisecond, snap.AvgTransitionDuration)
	assert.Equal(t, int64(1), snap.Rollbacks)
	assert.Equal(t, int64(3), snap.RollbackChildrenRemoved)
	assert.Equal(t, int64(2), snap.AdvisoryAttempts)
	assert.Equal(t, int64(1), snap.AdvisoryApplied)
	assert.Equal(t, int64(5), snap.SyncChildrenUpdated)
	assert.Equal(t, int64(1), snap.ChildrenCreated)

	m.Reset()
	snap = m.GetSnapshot()
	assert.Equal(t, int64(0), snap.Transitions)
	assert.Equal(t, int64(0), snap.RollbackChildrenRemoved)
}

func TestCollector_Gather(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition(time.Millisecond, true)
	m.RecordRollback(2)

	registry := prometheus.NewRegistry()
	require.NoError(t, Register(m, registry))

	families, err := registry.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			values[mf.GetName()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), values["fulflow_transitions_total"])
	assert.Equal(t, float64(1), values["fulflow_rollbacks_total"])
	assert.Equal(t, float64(2), values["fulflow_rollback_children_removed_total"])
}
