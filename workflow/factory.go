package workflow

import (
	"context"

	"fulflow/logging"
	"fulflow/monitoring"
	"fulflow/process"
	"fulflow/validation"
)

// ChildOptions 子单创建选项。零值即默认：拷贝行项目、不强制、不自动推进。
type ChildOptions struct {
	Name           string
	AttachmentKeys []string
	WithoutItems   bool // 为真时不从销售订单拷贝行项目
	Force          bool // 为真时绕过同类别已存在的幂等保护
	AutoAdvance    bool // 创建后按 (类型, 当前阶段, 类别) 推算阶段并执行流转（失败上抛）
}

// ItemSpec 创建流程时的行项目输入
type ItemSpec struct {
	ItemCode string
	Name     string
	Quantity float64
	Unit     string
}

// Factory 子单工厂：幂等地从流程派生子单据，行项目自销售订单拷贝。
type Factory struct {
	svc     *Service
	metrics *monitoring.Metrics
	logger  logging.Logger
}

// NewFactory 创建子单工厂
func NewFactory(svc *Service, metrics *monitoring.Metrics) *Factory {
	return &Factory{
		svc:     svc,
		metrics: metrics,
		logger:  logging.GetLogger().WithFields(logging.String("component", "workflow.factory")),
	}
}

// CreateProcess 创建流程及其销售订单（草稿态，单事务）
func (f *Factory) CreateProcess(ctx context.Context, processType process.ProcessType,
	customerAccount, user string, items []ItemSpec) (*process.Process, *process.Child, error) {
	if !processType.Valid() {
		return nil, nil, validation.NewValidationError("流程类型不合法: " + string(processType))
	}
	if err := validation.ValidateRequired(customerAccount, "customer_account"); err != nil {
		return nil, nil, err
	}
	for _, item := range items {
		if err := validation.ValidateRequired(item.ItemCode, "item_code"); err != nil {
			return nil, nil, err
		}
		if err := validation.ValidatePositive(item.Quantity, "quantity"); err != nil {
			return nil, nil, err
		}
	}

	p := process.NewProcess(processType, customerAccount, user)
	salesOrder := process.NewSalesOrder(p.ID, "", user)
	p.SalesOrderID = salesOrder.ID

	err := f.svc.Store().WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateProcess(ctx, p); err != nil {
			return err
		}
		if err := tx.CreateChild(ctx, salesOrder); err != nil {
			return err
		}
		lineItems := make([]*process.LineItem, 0, len(items))
		for _, item := range items {
			lineItems = append(lineItems,
				process.NewLineItem(salesOrder.ID, process.CategoryOrder,
					item.ItemCode, item.Name, item.Quantity, item.Unit, user))
		}
		return tx.InsertLineItems(ctx, lineItems)
	})
	if err != nil {
		return nil, nil, err
	}

	buf := f.svc.pub.buffer()
	f.svc.pub.record(buf, processCreatedEvent(p, user))
	f.svc.pub.record(buf, childCreatedEvent(salesOrder, user))
	f.svc.pub.flush(ctx, buf)

	f.logger.Info(ctx, "process created",
		logging.String("process_id", p.ID),
		logging.String("type", string(processType)))
	return p, salesOrder, nil
}

// CreateChild 为既有流程创建一张子单。
// 幂等保护：同类别已存在未删除子单且未设 Force 时返回 AlreadyExists。
// 销售订单只随流程创建，不走此入口。
func (f *Factory) CreateChild(ctx context.Context, processID string, category process.Category,
	user string, opts ChildOptions) (*process.Child, error) {
	if !category.Valid() {
		return nil, validation.NewValidationError("子单类别不合法: " + string(category))
	}
	if category == process.CategoryOrder {
		return nil, validation.NewValidationError("销售订单只能随流程一并创建")
	}

	var child *process.Child
	var proc *process.Process
	err := f.svc.Store().WithinTx(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.GetProcess(ctx, processID)
		if err != nil {
			return err
		}
		proc = p
		if !p.Type.AllowsCategory(category) {
			return validation.NewValidationError(
				"流程类型 " + string(p.Type) + " 不允许创建 " + string(category) + " 子单")
		}

		existing, err := tx.ListChildren(ctx, processID, ChildFilter{Category: category})
		if err != nil {
			return err
		}
		if len(existing) > 0 && !opts.Force {
			return newAlreadyExistsError(category, existing[0].ID)
		}

		child = process.NewChild(processID, category, opts.Name, user)
		child.AttachmentKeys = append([]string(nil), opts.AttachmentKeys...)
		if err := tx.CreateChild(ctx, child); err != nil {
			return err
		}

		if !opts.WithoutItems {
			if err := f.copyLineItems(ctx, tx, p, child, user); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.RecordChildCreated()
	}
	buf := f.svc.pub.buffer()
	f.svc.pub.record(buf, childCreatedEvent(child, user))
	f.svc.pub.flush(ctx, buf)

	if opts.AutoAdvance {
		target := impliedStage(proc.Type, proc.Stage, category)
		if target != "" && target != proc.Stage {
			if _, err := f.svc.Transition(ctx, processID, target, user); err != nil {
				// 创建已提交；推进是调用方明确要求的动作，失败上抛
				return child, err
			}
		}
	}
	return child, nil
}

// copyLineItems 从销售订单批量拷贝行项目到新子单
func (f *Factory) copyLineItems(ctx context.Context, tx Store, p *process.Process, child *process.Child, user string) error {
	if p.SalesOrderID == "" {
		return nil
	}
	source, err := tx.ListLineItems(ctx, p.SalesOrderID)
	if err != nil {
		return err
	}
	if len(source) == 0 {
		return nil
	}
	copied := make([]*process.LineItem, 0, len(source))
	for _, item := range source {
		copied = append(copied, item.CopyFor(child.ID, child.Category, user))
	}
	return tx.InsertLineItems(ctx, copied)
}

// impliedStage 按 (类型, 当前阶段, 新子单类别) 推算自动推进的目标阶段。
// 混合流程在另一类别已进行中时推进到合并阶段。
func impliedStage(t process.ProcessType, current process.Stage, category process.Category) process.Stage {
	switch category {
	case process.CategoryManufacturing:
		if t == process.TypeHybrid &&
			(current == process.StageInProcurement || current == process.StageInProcAndMfg) {
			return process.StageInProcAndMfg
		}
		return process.StageInManufacturing
	case process.CategoryProcurement:
		if t == process.TypeHybrid &&
			(current == process.StageInManufacturing || current == process.StageInProcAndMfg) {
			return process.StageInProcAndMfg
		}
		return process.StageInProcurement
	case process.CategoryShipment:
		return process.StageInShipment
	}
	return ""
}
