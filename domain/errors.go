package domain

import "fmt"

// RepositoryError 通用仓储错误
type RepositoryError struct {
	Code     string
	Message  string
	EntityID any
	Cause    error
}

func (e *RepositoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较，便于 errors.Is 与哨兵匹配
func (e *RepositoryError) Is(target error) bool {
	if re, ok := target.(*RepositoryError); ok {
		return e.Code == re.Code
	}
	return false
}

// 常见仓储错误哨兵
var (
	ErrEntityNotFound   = &RepositoryError{Code: "ENTITY_NOT_FOUND", Message: "entity not found"}
	ErrVersionConflict  = &RepositoryError{Code: "VERSION_CONFLICT", Message: "version conflict (optimistic lock)"}
	ErrAlreadyDeleted   = &RepositoryError{Code: "ALREADY_DELETED", Message: "entity already soft-deleted"}
	ErrNotDeleted       = &RepositoryError{Code: "NOT_DELETED", Message: "entity is not deleted"}
	ErrRepositoryFailed = &RepositoryError{Code: "REPOSITORY_FAILED", Message: "repository operation failed"}
)

// NewNotFoundError 创建未找到错误
func NewNotFoundError(format string, args ...any) *RepositoryError {
	return &RepositoryError{
		Code:    "ENTITY_NOT_FOUND",
		Message: fmt.Sprintf(format, args...),
	}
}

// NewVersionConflictError 创建乐观锁冲突错误
func NewVersionConflictError(id any, expected, actual uint64) *RepositoryError {
	return &RepositoryError{
		Code:     "VERSION_CONFLICT",
		Message:  fmt.Sprintf("version conflict: expected %d, got %d", expected, actual),
		EntityID: id,
	}
}

// NewAlreadyDeletedError 创建重复软删错误
func NewAlreadyDeletedError(id any) *RepositoryError {
	return &RepositoryError{
		Code:     "ALREADY_DELETED",
		Message:  "entity already soft-deleted",
		EntityID: id,
	}
}

// NewNotDeletedError 创建未删除错误（恢复未删除实体时）
func NewNotDeletedError(id any) *RepositoryError {
	return &RepositoryError{
		Code:     "NOT_DELETED",
		Message:  "entity is not deleted",
		EntityID: id,
	}
}
