package workflow

import (
	"context"

	"fulflow/process"
)

// ChildFilter 子单查询条件
type ChildFilter struct {
	Category       process.Category // 必填
	IncludeDeleted bool
}

// Store 编排核心对持久化的全部要求（面向外部协作方的窄接口）。
// SaveProcess 必须做乐观锁校验：入参 Version 与存储版本不一致时
// 返回 domain.ErrVersionConflict，防止并发流转基于过期阶段双写。
type Store interface {
	// WithinTx 在单个事务内执行 fn；fn 返回错误时整体回滚。
	// 事务内的 Store 不允许再次 WithinTx。
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	GetProcess(ctx context.Context, id string) (*process.Process, error)
	CreateProcess(ctx context.Context, p *process.Process) error
	SaveProcess(ctx context.Context, p *process.Process) error

	CreateChild(ctx context.Context, c *process.Child) error
	GetChild(ctx context.Context, id string) (*process.Child, error)
	ListChildren(ctx context.Context, processID string, filter ChildFilter) ([]*process.Child, error)
	SaveChild(ctx context.Context, c *process.Child) error

	// BulkSetChildStatus 批量改写某类别子单状态。
	// only 非空时仅命中当前状态在 only 内的子单；excluding 内的状态永不覆盖。
	// 返回实际更新的条数。
	BulkSetChildStatus(ctx context.Context, processID string, category process.Category,
		to process.ChildStatus, only, excluding []process.ChildStatus, user string) (int, error)

	// SoftDeleteChildren 软删指定类别的全部未删除子单，返回各类别删除数
	SoftDeleteChildren(ctx context.Context, processID string,
		categories []process.Category, user string) (map[process.Category]int, error)

	InsertLineItems(ctx context.Context, items []*process.LineItem) error
	ListLineItems(ctx context.Context, parentID string) ([]*process.LineItem, error)
}
