package workflow

import (
	"context"

	"fulflow/logging"
	"fulflow/process"
)

// Validator 流转校验器：结构性前置条件 + 角色权限。
// 两项检查对每次流转都无条件执行；admin 通配只豁免权限检查，
// 结构校验没有任何旁路。
type Validator struct {
	store  Store
	roles  process.IRoleResolver
	logger logging.Logger
}

// NewValidator 创建校验器
func NewValidator(store Store, roles process.IRoleResolver) *Validator {
	return &Validator{
		store:  store,
		roles:  roles,
		logger: logging.GetLogger().WithFields(logging.String("component", "workflow.validator")),
	}
}

// Validate 校验 p 流转到 target 的前置条件与权限。
// store 入参允许传事务视图，保证校验读与后续写在同一事务内。
func (v *Validator) Validate(ctx context.Context, store Store, p *process.Process, target process.Stage, user string) error {
	if store == nil {
		store = v.store
	}
	if err := v.validateStructural(ctx, store, p, target); err != nil {
		return err
	}
	return v.validatePermission(ctx, p, target, user)
}

// validateStructural 按目标阶段穷举分派的结构校验
func (v *Validator) validateStructural(ctx context.Context, store Store, p *process.Process, target process.Stage) error {
	switch target {
	case process.StageOrderConfirmed:
		if p.SalesOrderID == "" {
			return newValidationError(target, "流程缺少销售订单")
		}
		if p.CustomerAccount == "" {
			return newValidationError(target, "流程缺少客户账号")
		}
		return nil

	case process.StageInManufacturing, process.StageManufacturingCompleted:
		return v.requireChildren(ctx, store, p, target, process.CategoryManufacturing)

	case process.StageInProcurement, process.StageProcurementCompleted:
		return v.requireChildren(ctx, store, p, target, process.CategoryProcurement)

	case process.StageInProcAndMfg, process.StageProcAndMfgCompleted:
		if err := v.requireChildren(ctx, store, p, target, process.CategoryManufacturing); err != nil {
			return err
		}
		return v.requireChildren(ctx, store, p, target, process.CategoryProcurement)

	case process.StageInShipment, process.StageShipmentCompleted:
		return v.requireChildren(ctx, store, p, target, process.CategoryShipment)

	case process.StageCompleted:
		return v.requireAllShipmentsCompleted(ctx, store, p, target)

	case process.StageDraft, process.StageCancelled, process.StageIssueReported:
		return nil
	}
	return newValidationError(target, "未知目标阶段")
}

// requireChildren 要求至少一张未删除的指定类别子单
func (v *Validator) requireChildren(ctx context.Context, store Store, p *process.Process, target process.Stage, category process.Category) error {
	children, err := store.ListChildren(ctx, p.ID, ChildFilter{Category: category})
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return newMissingChildrenError(target, category)
	}
	return nil
}

// requireAllShipmentsCompleted 完成态要求全部发运子单已完成
func (v *Validator) requireAllShipmentsCompleted(ctx context.Context, store Store, p *process.Process, target process.Stage) error {
	children, err := store.ListChildren(ctx, p.ID, ChildFilter{Category: process.CategoryShipment})
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return newMissingChildrenError(target, process.CategoryShipment)
	}
	for _, c := range children {
		if c.Status != process.ChildCompleted {
			return newValidationError(target, "发运子单 "+c.Code+" 尚未完成")
		}
	}
	return nil
}

// validatePermission 角色权限检查：角色只收紧流转图，绝不放宽
func (v *Validator) validatePermission(ctx context.Context, p *process.Process, target process.Stage, user string) error {
	role, err := v.roles.RoleOf(ctx, user)
	if err != nil {
		return err
	}
	perms, wildcard := RolePermissions(role)
	if wildcard {
		return nil
	}
	if _, ok := perms[target]; !ok {
		v.logger.Debug(ctx, "permission denied",
			logging.String("user", user),
			logging.String("role", string(role)),
			logging.String("target", string(target)))
		return newPermissionDeniedError(role, target)
	}
	return nil
}
