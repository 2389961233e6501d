// Package monitoring 提供流程编排核心的运行指标采集。
// 以原子计数器为底座，可选导出为 Prometheus 指标。
package monitoring

import (
	"sync/atomic"
	"time"
)

// Metrics 流程编排指标
type Metrics struct {
	// 状态流转指标
	Transitions        int64 // 成功的状态流转总数
	TransitionFailures int64 // 被拒绝或失败的流转总数
	TransitionDuration int64 // 流转总耗时（纳秒）

	// 回退清理指标
	Rollbacks               int64 // 触发清理的回退流转数
	RollbackChildrenRemoved int64 // 回退中移除的子单总数

	// 自动推进指标
	AdvisoryAttempts int64 // 子单完成触发的建议性推进尝试数
	AdvisoryApplied  int64 // 实际生效的建议性推进数

	// 正向同步指标
	SyncChildrenUpdated int64 // 正向同步更新的子单总数

	// 子单工厂指标
	ChildrenCreated int64 // 创建的子单总数

	startTime time.Time
}

// NewMetrics 创建指标收集器
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordTransition 记录一次状态流转
func (m *Metrics) RecordTransition(duration time.Duration, success bool) {
	if success {
		atomic.AddInt64(&m.Transitions, 1)
	} else {
		atomic.AddInt64(&m.TransitionFailures, 1)
	}
	atomic.AddInt64(&m.TransitionDuration, int64(duration))
}

// RecordRollback 记录一次回退清理
func (m *Metrics) RecordRollback(childrenRemoved int) {
	atomic.AddInt64(&m.Rollbacks, 1)
	atomic.AddInt64(&m.RollbackChildrenRemoved, int64(childrenRemoved))
}

// RecordAdvisory 记录一次建议性推进
func (m *Metrics) RecordAdvisory(applied bool) {
	atomic.AddInt64(&m.AdvisoryAttempts, 1)
	if applied {
		atomic.AddInt64(&m.AdvisoryApplied, 1)
	}
}

// RecordSync 记录正向同步更新的子单数
func (m *Metrics) RecordSync(childrenUpdated int) {
	atomic.AddInt64(&m.SyncChildrenUpdated, int64(childrenUpdated))
}

// RecordChildCreated 记录子单创建
func (m *Metrics) RecordChildCreated() {
	atomic.AddInt64(&m.ChildrenCreated, 1)
}

// Snapshot 指标快照
type Snapshot struct {
	Transitions             int64         `json:"transitions"`
	TransitionFailures      int64         `json:"transition_failures"`
	AvgTransitionDuration   time.Duration `json:"avg_transition_duration"`
	Rollbacks               int64         `json:"rollbacks"`
	RollbackChildrenRemoved int64         `json:"rollback_children_removed"`
	AdvisoryAttempts        int64         `json:"advisory_attempts"`
	AdvisoryApplied         int64         `json:"advisory_applied"`
	SyncChildrenUpdated     int64         `json:"sync_children_updated"`
	ChildrenCreated         int64         `json:"children_created"`
	Uptime                  time.Duration `json:"uptime"`
}

// GetSnapshot 获取当前指标快照
func (m *Metrics) GetSnapshot() Snapshot {
	transitions := atomic.LoadInt64(&m.Transitions)
	failures := atomic.LoadInt64(&m.TransitionFailures)
	total := transitions + failures
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(atomic.LoadInt64(&m.TransitionDuration) / total)
	}
	return Snapshot{
		Transitions:             transitions,
		TransitionFailures:      failures,
		AvgTransitionDuration:   avg,
		Rollbacks:               atomic.LoadInt64(&m.Rollbacks),
		RollbackChildrenRemoved: atomic.LoadInt64(&m.RollbackChildrenRemoved),
		AdvisoryAttempts:        atomic.LoadInt64(&m.AdvisoryAttempts),
		AdvisoryApplied:         atomic.LoadInt64(&m.AdvisoryApplied),
		SyncChildrenUpdated:     atomic.LoadInt64(&m.SyncChildrenUpdated),
		ChildrenCreated:         atomic.LoadInt64(&m.ChildrenCreated),
		Uptime:                  time.Since(m.startTime),
	}
}

// Reset 重置所有计数器（测试用）
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.Transitions, 0)
	atomic.StoreInt64(&m.TransitionFailures, 0)
	atomic.StoreInt64(&m.TransitionDuration, 0)
	atomic.StoreInt64(&m.Rollbacks, 0)
	atomic.StoreInt64(&m.RollbackChildrenRemoved, 0)
	atomic.StoreInt64(&m.AdvisoryAttempts, 0)
	atomic.StoreInt64(&m.AdvisoryApplied, 0)
	atomic.StoreInt64(&m.SyncChildrenUpdated, 0)
	atomic.StoreInt64(&m.ChildrenCreated, 0)
	m.startTime = time.Now()
}
