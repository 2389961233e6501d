package workflow

import (
	"context"
	"time"

	"fulflow/logging"
	"fulflow/monitoring"
	"fulflow/process"
)

// AdvisoryResult 建议性流转的结果。反向同步触发的流转是
// "试探性"的：失败不回传给触发它的子单状态变更，只在此处暴露，
// 调用方可以完全忽略。
type AdvisoryResult struct {
	Attempted bool
	Target    process.Stage
	Applied   bool
	Err       error
}

// SyncService 状态同步服务的反向入口：子单完成/异常上报向上
// 传播到父流程，以及异常解除。正向同步由状态服务在流转事务内执行。
type SyncService struct {
	svc     *Service
	metrics *monitoring.Metrics
	logger  logging.Logger
}

// NewSyncService 创建同步服务
func NewSyncService(svc *Service, metrics *monitoring.Metrics) *SyncService {
	return &SyncService{
		svc:     svc,
		metrics: metrics,
		logger:  logging.GetLogger().WithFields(logging.String("component", "workflow.sync")),
	}
}

// ChildCompleted 将子单标记为完成并反向同步：
// 若流程正处于该类别对应的进行中阶段，且该类别全部未删除子单
// 均已完成，则建议性地尝试流转到对应的完成阶段。
// 混合流程的合并阶段要求两个类别都齐备才触发合并完成。
func (s *SyncService) ChildCompleted(ctx context.Context, childID, user string) (*AdvisoryResult, error) {
	child, err := s.markChild(ctx, childID, process.ChildCompleted, user)
	if err != nil {
		return nil, err
	}

	p, err := s.svc.Store().GetProcess(ctx, child.ProcessID)
	if err != nil {
		return nil, err
	}

	target, categories := completionTrigger(p.Stage, child.Category)
	if target == "" {
		return &AdvisoryResult{}, nil
	}
	for _, cat := range categories {
		done, err := s.allCompleted(ctx, p.ID, cat)
		if err != nil {
			return nil, err
		}
		if !done {
			return &AdvisoryResult{}, nil
		}
	}
	return s.attemptTransition(ctx, p.ID, target, user), nil
}

// ChildIssueReported 将子单标记为异常并反向同步：把流程的瓶颈
// 类别改为上报类别，再建议性地尝试流转到 issue-reported。
func (s *SyncService) ChildIssueReported(ctx context.Context, childID, user string) (*AdvisoryResult, error) {
	child, err := s.markChild(ctx, childID, process.ChildIssueReported, user)
	if err != nil {
		return nil, err
	}

	store := s.svc.Store()
	err = store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.GetProcess(ctx, child.ProcessID)
		if err != nil {
			return err
		}
		p.ActiveCategory = activeCategoryOf(child.Category)
		p.SetUpdatedInfo(user, time.Now())
		return tx.SaveProcess(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	return s.attemptTransition(ctx, child.ProcessID, process.StageIssueReported, user), nil
}

// ResolveIssue 异常解除：要求流程当前处于 issue-reported。
// 子单恢复和到 resume 的流转在同一事务内完成：流转被拒绝时整体
// 回滚，子单保持 issue-reported，不留半恢复状态。此流转是显式的
// 用户动作，失败会被抛出。
func (s *SyncService) ResolveIssue(ctx context.Context, processID string, resume process.Stage, user string) (*process.Process, error) {
	svc := s.svc
	start := time.Now()
	var (
		out       *txTransition
		attempted bool
	)
	err := svc.Store().WithinTx(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.GetProcess(ctx, processID)
		if err != nil {
			return err
		}
		if p.Stage != process.StageIssueReported {
			return newNotInIssueStateError(p.Stage)
		}
		// 先恢复被传播中断的子单，再执行恢复流转
		for _, cat := range p.ActiveCategory.Categories() {
			if _, err := tx.BulkSetChildStatus(ctx, processID, cat, process.ChildActive,
				[]process.ChildStatus{process.ChildIssueReported}, nil, user); err != nil {
				return err
			}
		}
		attempted = true
		t, err := svc.transitionTx(ctx, tx, processID, resume, user)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if attempted && svc.metrics != nil {
		svc.metrics.RecordTransition(time.Since(start), err == nil)
	}
	if err != nil {
		return nil, err
	}

	svc.finishTransition(ctx, out, user, issueResolvedEvent(out.result.Process, resume, user))
	return out.result.Process, nil
}

// markChild 写入子单新状态并发布状态变更事件
func (s *SyncService) markChild(ctx context.Context, childID string, to process.ChildStatus, user string) (*process.Child, error) {
	store := s.svc.Store()
	var child *process.Child
	var old process.ChildStatus
	err := store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		c, err := tx.GetChild(ctx, childID)
		if err != nil {
			return err
		}
		old = c.Status
		if c.Status == to {
			child = c
			return nil
		}
		c.Status = to
		c.SetUpdatedInfo(user, time.Now())
		if err := tx.SaveChild(ctx, c); err != nil {
			return err
		}
		child = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if old != child.Status {
		buf := s.svc.pub.buffer()
		s.svc.pub.record(buf, childStatusChangedEvent(child, old, user))
		s.svc.pub.flush(ctx, buf)
	}
	return child, nil
}

// attemptTransition 建议性流转：失败只记日志并装入结果，绝不上抛
func (s *SyncService) attemptTransition(ctx context.Context, processID string, target process.Stage, user string) *AdvisoryResult {
	_, err := s.svc.Transition(ctx, processID, target, user)
	applied := err == nil
	if s.metrics != nil {
		s.metrics.RecordAdvisory(applied)
	}
	if err != nil {
		s.logger.Debug(ctx, "advisory transition rejected",
			logging.String("process_id", processID),
			logging.String("target", string(target)),
			logging.Error(err))
	}
	return &AdvisoryResult{Attempted: true, Target: target, Applied: applied, Err: err}
}

// allCompleted 判断某类别全部未删除子单是否均已完成（至少一张）
func (s *SyncService) allCompleted(ctx context.Context, processID string, category process.Category) (bool, error) {
	children, err := s.svc.Store().ListChildren(ctx, processID, ChildFilter{Category: category})
	if err != nil {
		return false, err
	}
	if len(children) == 0 {
		return false, nil
	}
	for _, c := range children {
		if c.Status != process.ChildCompleted {
			return false, nil
		}
	}
	return true, nil
}

// completionTrigger 子单完成的自动推进触发表：
// (当前阶段, 完成的类别) → (目标阶段, 需要全部完成的类别集合)。
// 非进行中阶段或类别不匹配时不触发。
func completionTrigger(stage process.Stage, category process.Category) (process.Stage, []process.Category) {
	switch stage {
	case process.StageInManufacturing:
		if category == process.CategoryManufacturing {
			return process.StageManufacturingCompleted, []process.Category{process.CategoryManufacturing}
		}
	case process.StageInProcurement:
		if category == process.CategoryProcurement {
			return process.StageProcurementCompleted, []process.Category{process.CategoryProcurement}
		}
	case process.StageInProcAndMfg:
		if category == process.CategoryManufacturing || category == process.CategoryProcurement {
			return process.StageProcAndMfgCompleted,
				[]process.Category{process.CategoryManufacturing, process.CategoryProcurement}
		}
	case process.StageInShipment:
		if category == process.CategoryShipment {
			return process.StageShipmentCompleted, []process.Category{process.CategoryShipment}
		}
	}
	return "", nil
}

// activeCategoryOf 子单类别对应的瓶颈标记
func activeCategoryOf(c process.Category) process.ActiveCategory {
	switch c {
	case process.CategoryOrder:
		return process.ActiveSalesOrder
	case process.CategoryManufacturing:
		return process.ActiveManufacturing
	case process.CategoryProcurement:
		return process.ActiveProcurement
	case process.CategoryShipment:
		return process.ActiveShipment
	}
	return process.ActiveNone
}
