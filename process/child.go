package process

import (
	"time"

	"github.com/google/uuid"

	"fulflow/codegen/snowflake"
	"fulflow/domain"
	"fulflow/validation"
)

// Child 流程子单据。销售/生产/采购/发运四类共用同一结构，
// 以封闭的 Category 枚举区分并穷举分派，避免按表名/字符串散表。
type Child struct {
	domain.Entity
	Code           string      `json:"code"` // 单据编号，如 MO-2026-xxxx
	ProcessID      string      `json:"process_id"`
	Category       Category    `json:"category"`
	Status         ChildStatus `json:"status"`
	Name           string      `json:"name,omitempty"`
	AttachmentKeys []string    `json:"attachment_keys,omitempty"`
}

// NewChild 创建草稿态子单据
func NewChild(processID string, category Category, name, createdBy string) *Child {
	now := time.Now()
	c := &Child{
		Code:      snowflake.DocumentCode(category.CodePrefix()),
		ProcessID: processID,
		Category:  category,
		Status:    ChildDraft,
		Name:      name,
	}
	c.ID = uuid.NewString()
	c.SetCreatedInfo(createdBy, now)
	c.SetUpdatedInfo(createdBy, now)
	return c
}

// NewSalesOrder 创建销售订单子单（每个流程恰好一张）
func NewSalesOrder(processID, name, createdBy string) *Child {
	return NewChild(processID, CategoryOrder, name, createdBy)
}

// Validate 实体级校验
func (c *Child) Validate() error {
	if !c.Category.Valid() {
		return validation.NewValidationError("子单类别不合法: " + string(c.Category))
	}
	if !c.Status.Valid() {
		return validation.NewValidationError("子单状态不合法: " + string(c.Status))
	}
	if err := validation.ValidateRequired(c.ProcessID, "process_id"); err != nil {
		return err
	}
	return validation.ValidateRequired(c.Code, "code")
}

// Clone 深拷贝
func (c *Child) Clone() *Child {
	cp := *c
	cp.DeletedAt = cloneTime(c.DeletedAt)
	if c.DeletedBy != nil {
		by := *c.DeletedBy
		cp.DeletedBy = &by
	}
	if c.AttachmentKeys != nil {
		cp.AttachmentKeys = append([]string(nil), c.AttachmentKeys...)
	}
	return &cp
}

// LineItem 行项目。子单创建时从销售订单批量拷贝，之后不再同步。
type LineItem struct {
	domain.Entity
	ParentID string   `json:"parent_id"` // 所属子单 ID
	Category Category `json:"category"`  // 所属子单类别
	ItemCode string   `json:"item_code"`
	Name     string   `json:"name"`
	Quantity float64  `json:"quantity"`
	Unit     string   `json:"unit"`
}

// NewLineItem 创建行项目
func NewLineItem(parentID string, category Category, itemCode, name string, quantity float64, unit, createdBy string) *LineItem {
	now := time.Now()
	item := &LineItem{
		ParentID: parentID,
		Category: category,
		ItemCode: itemCode,
		Name:     name,
		Quantity: quantity,
		Unit:     unit,
	}
	item.ID = uuid.NewString()
	item.SetCreatedInfo(createdBy, now)
	item.SetUpdatedInfo(createdBy, now)
	return item
}

// Validate 实体级校验
func (i *LineItem) Validate() error {
	if err := validation.ValidateRequired(i.ParentID, "parent_id"); err != nil {
		return err
	}
	if err := validation.ValidateRequired(i.ItemCode, "item_code"); err != nil {
		return err
	}
	return validation.ValidatePositive(i.Quantity, "quantity")
}

// CopyFor 以当前行项目为模板为另一张子单复制一条行项目
func (i *LineItem) CopyFor(parentID string, category Category, createdBy string) *LineItem {
	return NewLineItem(parentID, category, i.ItemCode, i.Name, i.Quantity, i.Unit, createdBy)
}
