package monitoring

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector 将 Metrics 暴露为 Prometheus 采集器。
// 计数器在采集时读取原子变量，无需额外锁。
type Collector struct {
	metrics *Metrics

	transitions        *prometheus.Desc
	transitionFailures *prometheus.Desc
	rollbacks          *prometheus.Desc
	rollbackRemoved    *prometheus.Desc
	advisoryAttempts   *prometheus.Desc
	advisoryApplied    *prometheus.Desc
	syncUpdated        *prometheus.Desc
	childrenCreated    *prometheus.Desc
}

// NewCollector 创建 Prometheus 采集器
func NewCollector(metrics *Metrics) *Collector {
	return &Collector{
		metrics: metrics,
		transitions: prometheus.NewDesc(
			"fulflow_transitions_total",
			"Total number of successful stage transitions.",
			nil, nil),
		transitionFailures: prometheus.NewDesc(
			"fulflow_transition_failures_total",
			"Total number of rejected or failed stage transitions.",
			nil, nil),
		rollbacks: prometheus.NewDesc(
			"fulflow_rollbacks_total",
			"Total number of rollback transitions that triggered cleanup.",
			nil, nil),
		rollbackRemoved: prometheus.NewDesc(
			"fulflow_rollback_children_removed_total",
			"Total number of child documents removed by rollback cleanup.",
			nil, nil),
		advisoryAttempts: prometheus.NewDesc(
			"fulflow_advisory_attempts_total",
			"Total number of advisory auto-advance attempts.",
			nil, nil),
		advisoryApplied: prometheus.NewDesc(
			"fulflow_advisory_applied_total",
			"Total number of advisory auto-advances that were applied.",
			nil, nil),
		syncUpdated: prometheus.NewDesc(
			"fulflow_sync_children_updated_total",
			"Total number of child documents updated by forward status sync.",
			nil, nil),
		childrenCreated: prometheus.NewDesc(
			"fulflow_children_created_total",
			"Total number of child documents created by the factory.",
			nil, nil),
	}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.transitions
	ch <- c.transitionFailures
	ch <- c.rollbacks
	ch <- c.rollbackRemoved
	ch <- c.advisoryAttempts
	ch <- c.advisoryApplied
	ch <- c.syncUpdated
	ch <- c.childrenCreated
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.metrics
	ch <- prometheus.MustNewConstMetric(c.transitions, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.Transitions)))
	ch <- prometheus.MustNewConstMetric(c.transitionFailures, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.TransitionFailures)))
	ch <- prometheus.MustNewConstMetric(c.rollbacks, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.Rollbacks)))
	ch <- prometheus.MustNewConstMetric(c.rollbackRemoved, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.RollbackChildrenRemoved)))
	ch <- prometheus.MustNewConstMetric(c.advisoryAttempts, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.AdvisoryAttempts)))
	ch <- prometheus.MustNewConstMetric(c.advisoryApplied, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.AdvisoryApplied)))
	ch <- prometheus.MustNewConstMetric(c.syncUpdated, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.SyncChildrenUpdated)))
	ch <- prometheus.MustNewConstMetric(c.childrenCreated, prometheus.CounterValue,
		float64(atomic.LoadInt64(&m.ChildrenCreated)))
}

// Register 注册到指定 registry；registry 为 nil 时使用默认 registry
func Register(metrics *Metrics, registry *prometheus.Registry) error {
	collector := NewCollector(metrics)
	if registry == nil {
		return prometheus.Register(collector)
	}
	return registry.Register(collector)
}
