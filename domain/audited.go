package domain

import "time"

// Entity 通用审计实体字段（用于嵌入），主键为字符串 ID（UUID）。
type Entity struct {
	ID        string     `json:"id"`
	Version   uint64     `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy string     `json:"updated_by"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `json:"deleted_by,omitempty"`
}

func (e *Entity) GetID() string      { return e.ID }
func (e *Entity) GetVersion() uint64 { return e.Version }

func (e *Entity) GetCreatedAt() time.Time { return e.CreatedAt }
func (e *Entity) GetCreatedBy() string    { return e.CreatedBy }
func (e *Entity) GetUpdatedAt() time.Time { return e.UpdatedAt }
func (e *Entity) GetUpdatedBy() string    { return e.UpdatedBy }

func (e *Entity) SetCreatedInfo(by string, at time.Time) {
	e.CreatedBy = by
	e.CreatedAt = at
}

func (e *Entity) SetUpdatedInfo(by string, at time.Time) {
	e.UpdatedBy = by
	e.UpdatedAt = at
	// 所有修改类操作都推动版本号递增，软删/恢复同样递增，保持乐观锁语义一致
	e.Version++
}

func (e *Entity) GetDeletedAt() *time.Time { return e.DeletedAt }
func (e *Entity) GetDeletedBy() *string    { return e.DeletedBy }
func (e *Entity) IsDeleted() bool          { return e.DeletedAt != nil }

func (e *Entity) SoftDelete(by string, at time.Time) error {
	if e.IsDeleted() {
		return NewAlreadyDeletedError(e.ID)
	}
	e.DeletedAt = &at
	e.DeletedBy = &by
	e.Version++
	return nil
}

func (e *Entity) Restore() error {
	if !e.IsDeleted() {
		return NewNotDeletedError(e.ID)
	}
	e.DeletedAt = nil
	e.DeletedBy = nil
	e.Version++
	return nil
}
