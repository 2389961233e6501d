package process

import (
	"time"

	"github.com/google/uuid"

	"fulflow/codegen/snowflake"
	"fulflow/domain"
	"fulflow/validation"
)

// Process 履约流程主档（编排根实体）。
// 阶段流转只允许经由 workflow 包的状态服务修改；本类型不做任何图校验。
type Process struct {
	domain.Entity
	Code            string         `json:"code"` // 流程编号，如 FP-2026-xxxx
	Type            ProcessType    `json:"type"`
	Stage           Stage          `json:"stage"`
	ActiveCategory  ActiveCategory `json:"active_category"`
	CustomerAccount string         `json:"customer_account"`
	SalesOrderID    string         `json:"sales_order_id"` // 独占 1:1 销售订单

	// 仅 order-confirmed / completed / cancelled 有专属时间戳，
	// 其余阶段只通过瓶颈类别标记跟踪
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// NewProcess 创建草稿态流程（销售订单由工厂随流程一并创建）。
// 瓶颈类别与 (类型, 阶段) 查表保持一致：草稿期瓶颈是销售订单本身。
func NewProcess(processType ProcessType, customerAccount, createdBy string) *Process {
	now := time.Now()
	p := &Process{
		Code:            snowflake.DocumentCode("FP"),
		Type:            processType,
		Stage:           StageDraft,
		ActiveCategory:  ActiveSalesOrder,
		CustomerAccount: customerAccount,
	}
	p.ID = uuid.NewString()
	p.SetCreatedInfo(createdBy, now)
	p.SetUpdatedInfo(createdBy, now)
	return p
}

// Validate 实体级校验
func (p *Process) Validate() error {
	if !p.Type.Valid() {
		return validation.NewValidationError("流程类型不合法: " + string(p.Type))
	}
	if !p.Stage.Valid() {
		return validation.NewValidationError("流程阶段不合法: " + string(p.Stage))
	}
	if err := validation.ValidateRequired(p.Code, "code"); err != nil {
		return err
	}
	return validation.ValidateRequired(p.CustomerAccount, "customer_account")
}

// StampStageEntry 写入目标阶段的专属时间戳（若有）
func (p *Process) StampStageEntry(stage Stage, at time.Time) {
	switch stage {
	case StageOrderConfirmed:
		p.ConfirmedAt = &at
	case StageCompleted:
		p.CompletedAt = &at
	case StageCancelled:
		p.CancelledAt = &at
	}
}

// Clone 深拷贝（内存存储返回副本用）
func (p *Process) Clone() *Process {
	c := *p
	c.ConfirmedAt = cloneTime(p.ConfirmedAt)
	c.CompletedAt = cloneTime(p.CompletedAt)
	c.CancelledAt = cloneTime(p.CancelledAt)
	c.DeletedAt = cloneTime(p.DeletedAt)
	if p.DeletedBy != nil {
		by := *p.DeletedBy
		c.DeletedBy = &by
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
