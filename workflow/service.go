package workflow

import (
	"context"
	"sort"
	"time"

	"fulflow/blob"
	"fulflow/eventing"
	"fulflow/eventing/bus"
	"fulflow/logging"
	"fulflow/monitoring"
	"fulflow/process"
)

// TransitionResult 流转结果。Removed 是回退清理的删除计数，
// 仅作为旁路报告返回给调用方，不属于持久化状态。
type TransitionResult struct {
	Process *process.Process
	Removed map[process.Category]int
}

// ServiceOptions 状态服务的可选依赖
type ServiceOptions struct {
	Events  *bus.EventBus // 事件总线（可空：不发布）
	Metrics *monitoring.Metrics
	Blobs   blob.Store // 附件存储（可空：回退时跳过附件清理）
	Logger  logging.Logger
}

// Service 流程状态服务：流转的事务入口。
// 每次流转在单个存储事务内完成读取-校验-变更-同步，
// 以乐观锁（版本号）防止并发流转基于过期阶段双写。
type Service struct {
	store     Store
	validator *Validator
	pub       publisher
	metrics   *monitoring.Metrics
	blobs     blob.Store
	logger    logging.Logger
}

// NewService 创建状态服务
func NewService(store Store, roles process.IRoleResolver, opts ...ServiceOptions) *Service {
	var opt ServiceOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	logger := opt.Logger
	if logger == nil {
		logger = logging.GetLogger().WithFields(logging.String("component", "workflow.service"))
	}
	return &Service{
		store:     store,
		validator: NewValidator(store, roles),
		pub:       publisher{events: opt.Events, logger: logger},
		metrics:   opt.Metrics,
		blobs:     opt.Blobs,
		logger:    logger,
	}
}

// Store 暴露底层存储（工厂与同步服务共用）
func (s *Service) Store() Store { return s.store }

// txTransition 一次流转在事务内产出的结果，连同提交后收尾所需的上下文
type txTransition struct {
	result         *TransitionResult
	oldStage       process.Stage
	attachmentKeys []string
}

// Transition 执行一次阶段流转。
// 算法（单事务）：图检查 → 校验器 → 回退清理 → 变更阶段与时间戳 →
// 保存（乐观锁） → 正向同步。任何一步失败整体回滚，不留部分状态。
func (s *Service) Transition(ctx context.Context, processID string, target process.Stage, user string) (*TransitionResult, error) {
	start := time.Now()
	var out *txTransition

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		t, err := s.transitionTx(ctx, tx, processID, target, user)
		if err != nil {
			return err
		}
		out = t
		return nil
	})

	if s.metrics != nil {
		s.metrics.RecordTransition(time.Since(start), err == nil)
	}
	if err != nil {
		return nil, err
	}

	s.finishTransition(ctx, out, user)
	return out.result, nil
}

// transitionTx 在调用方持有的事务内执行流转主体。
// 异常解除等需要把流转和其他写入合并为一个事务的调用方直接使用它。
func (s *Service) transitionTx(ctx context.Context, tx Store, processID string, target process.Stage, user string) (*txTransition, error) {
	p, err := tx.GetProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	oldStage := p.Stage

	graph, err := GraphFor(p.Type)
	if err != nil {
		return nil, err
	}
	if !graph.Allowed(p.Stage, target) {
		return nil, newInvalidTransitionError(p.Stage, target)
	}

	if err := s.validator.Validate(ctx, tx, p, target, user); err != nil {
		return nil, err
	}

	// 回退检测：进出异常态是恢复/中断，不按回退处理
	removed := map[process.Category]int{}
	var attachmentKeys []string
	if p.Stage != process.StageIssueReported && target != process.StageIssueReported &&
		Priority(target) < Priority(p.Stage) {
		cats := invalidatedCategories(p.Type, target)
		attachmentKeys, err = s.collectAttachmentKeys(ctx, tx, p.ID, cats)
		if err != nil {
			return nil, err
		}
		removed, err = tx.SoftDeleteChildren(ctx, p.ID, cats, user)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	p.Stage = target
	p.StampStageEntry(target, now)
	// 异常态保留中断前的瓶颈类别标记
	if target != process.StageIssueReported {
		p.ActiveCategory = ActiveCategoryFor(p.Type, target)
	}
	p.SetUpdatedInfo(user, now)
	if err := tx.SaveProcess(ctx, p); err != nil {
		return nil, err
	}

	updated, err := applyForwardSync(ctx, tx, p, user)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordSync(updated)
	}

	return &txTransition{
		result:         &TransitionResult{Process: p, Removed: removed},
		oldStage:       oldStage,
		attachmentKeys: attachmentKeys,
	}, nil
}

// finishTransition 提交后的收尾：回退指标、事件发布、附件清理与日志。
// extra 里的事件随流转事件一并发布（如异常解除事件）。
func (s *Service) finishTransition(ctx context.Context, t *txTransition, user string, extra ...*eventing.Event) {
	result := t.result
	target := result.Process.Stage

	if s.metrics != nil && len(result.Removed) > 0 {
		total := 0
		for _, n := range result.Removed {
			total += n
		}
		s.metrics.RecordRollback(total)
	}

	buf := s.pub.buffer()
	s.pub.record(buf, stageChangedEvent(result.Process, t.oldStage, user))
	if len(result.Removed) > 0 {
		s.pub.record(buf, childrenRemovedEvent(result.Process, result.Removed, user))
	}
	if target == process.StageIssueReported {
		s.pub.record(buf, issueReportedEvent(result.Process, result.Process.ActiveCategory, user))
	}
	for _, evt := range extra {
		s.pub.record(buf, evt)
	}
	s.pub.flush(ctx, buf)

	s.cleanupAttachments(ctx, t.attachmentKeys)

	s.logger.Info(ctx, "stage transition applied",
		logging.String("process_id", result.Process.ID),
		logging.String("from", string(t.oldStage)),
		logging.String("to", string(target)),
		logging.String("user", user))
}

// AllowedTargetStages 返回当前用户从当前阶段可达的阶段集合
// （图 ∩ 角色，按优先级排序），用于 UI 展示。
func (s *Service) AllowedTargetStages(ctx context.Context, p *process.Process, user string) ([]process.Stage, error) {
	graph, err := GraphFor(p.Type)
	if err != nil {
		return nil, err
	}
	role, err := s.validator.roles.RoleOf(ctx, user)
	if err != nil {
		return nil, err
	}
	perms, wildcard := RolePermissions(role)

	var out []process.Stage
	for _, target := range graph[p.Stage] {
		if wildcard {
			out = append(out, target)
			continue
		}
		if _, ok := perms[target]; ok {
			out = append(out, target)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return Priority(out[i]) < Priority(out[j]) })
	return out, nil
}

// collectAttachmentKeys 汇总即将被回退清理的子单附件（提交后尽力删除）
func (s *Service) collectAttachmentKeys(ctx context.Context, tx Store, processID string, cats []process.Category) ([]string, error) {
	if s.blobs == nil {
		return nil, nil
	}
	var keys []string
	for _, cat := range cats {
		children, err := tx.ListChildren(ctx, processID, ChildFilter{Category: cat})
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			keys = append(keys, c.AttachmentKeys...)
		}
	}
	return keys, nil
}

// cleanupAttachments 事务提交后的附件清理：尽力而为，失败只记日志
func (s *Service) cleanupAttachments(ctx context.Context, keys []string) {
	if s.blobs == nil || len(keys) == 0 {
		return
	}
	for _, key := range keys {
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "attachment cleanup failed",
				logging.String("key", key), logging.Error(err))
		}
	}
}

// applyForwardSync 正向同步（事务内执行，阶段已写入 p）：
// 普通阶段按同步表批量改写子单状态（同步终态除外）；
// 异常态改为异常传播：仅把瓶颈类别中 active 的子单置为 issue-reported。
func applyForwardSync(ctx context.Context, tx Store, p *process.Process, user string) (int, error) {
	if p.Stage == process.StageIssueReported {
		total := 0
		for _, cat := range p.ActiveCategory.Categories() {
			n, err := tx.BulkSetChildStatus(ctx, p.ID, cat, process.ChildIssueReported,
				[]process.ChildStatus{process.ChildActive}, nil, user)
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	}

	excluding := []process.ChildStatus{process.ChildCancelled, process.ChildIssueReported}
	total := 0
	for cat, status := range forwardSyncTargets(p.Stage) {
		n, err := tx.BulkSetChildStatus(ctx, p.ID, cat, status, nil, excluding, user)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
