// Package domain 定义领域实体的核心接口体系与通用审计实体。
//
// 设计原则：
// 1. 接口最小化 - 每个接口只包含必需的方法
// 2. 组合优于继承 - 通过接口组合构建复杂类型
// 3. 泛型支持 - 提供类型安全的 ID 类型
package domain

import "time"

// IObject 最基础的对象接口，所有实体的根接口。
type IObject[T comparable] interface {
	// GetID 返回对象的唯一标识
	GetID() T
}

// IEntity 实体接口，在 IObject 基础上增加版本控制。
// 版本号用于乐观锁，防止并发冲突。
type IEntity[T comparable] interface {
	IObject[T]

	// GetVersion 返回实体的乐观锁版本号
	// 每次修改都应该递增版本号，用于并发冲突检测
	GetVersion() uint64
}

// IValidatable 可验证接口。
// 实现此接口的实体可以验证自身状态的有效性。
type IValidatable interface {
	// Validate 验证实体状态是否有效
	Validate() error
}

// IAuditable 审计追踪接口。
type IAuditable interface {
	GetCreatedAt() time.Time
	GetCreatedBy() string
	GetUpdatedAt() time.Time
	GetUpdatedBy() string

	// 设置审计信息（由基础设施层调用）
	SetCreatedInfo(by string, at time.Time)
	SetUpdatedInfo(by string, at time.Time)
}

// ISoftDeletable 软删除接口。
// 实现此接口的实体支持逻辑删除而非物理删除。
type ISoftDeletable interface {
	GetDeletedAt() *time.Time
	GetDeletedBy() *string
	IsDeleted() bool
	SoftDelete(by string, at time.Time) error
	Restore() error
}

// IAuditedEntity 带审计与软删除能力的实体接口。
// 流程与各类子单据都满足该接口。
type IAuditedEntity[T comparable] interface {
	IEntity[T]
	IAuditable
	ISoftDeletable
	IValidatable
}
