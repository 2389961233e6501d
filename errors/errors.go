// Package errors 提供带错误码的应用错误类型。
// 编排核心的用户可见错误（非法流转、权限不足、前置校验失败等）都通过
// ErrorCode 归类，便于上层接口映射为对外的错误响应。
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	// 通用错误代码
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// 业务错误代码
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicate   ErrorCode = "DUPLICATE_ERROR"
	ErrCodeConcurrency ErrorCode = "CONCURRENCY_ERROR"

	// 流程编排错误代码
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrCodeNotInIssueState   ErrorCode = "NOT_IN_ISSUE_STATE"

	// 基础设施错误代码
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
)

// IError 错误接口
type IError interface {
	error

	// Code 获取错误代码
	Code() ErrorCode

	// Message 获取错误消息
	Message() string

	// Cause 获取原始错误
	Cause() error

	// Details 获取错误详情
	Details() map[string]any

	// WithDetails 追加详情，返回新错误
	WithDetails(details map[string]any) IError

	// WithContext 追加单个上下文键值，返回新错误
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装已有错误并归类
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }

func (e *AppError) Message() string { return e.message }

func (e *AppError) Cause() error { return e.cause }

func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Stack 获取创建时捕获的调用栈
func (e *AppError) Stack() string { return e.stack }

// Is 支持 errors.Is：同码的 AppError 视为同一错误
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) WithDetails(details map[string]any) IError {
	merged := copyMap(e.details)
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: merged,
		stack:   e.stack,
	}
}

func (e *AppError) WithContext(key string, value any) IError {
	merged := copyMap(e.details)
	merged[key] = value
	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: merged,
		stack:   e.stack,
	}
}

// 预定义错误变量（errors.Is 哨兵）
var (
	ErrInternal          = NewError(ErrCodeInternal, "内部错误")
	ErrNotFound          = NewError(ErrCodeNotFound, "资源未找到")
	ErrValidation        = NewError(ErrCodeValidation, "数据验证失败")
	ErrConcurrency       = NewError(ErrCodeConcurrency, "并发冲突")
	ErrInvalidTransition = NewError(ErrCodeInvalidTransition, "非法的阶段流转")
	ErrPermissionDenied  = NewError(ErrCodePermissionDenied, "角色无权执行该流转")
	ErrAlreadyExists     = NewError(ErrCodeAlreadyExists, "子单据已存在")
	ErrNotInIssueState   = NewError(ErrCodeNotInIssueState, "流程当前不在异常上报状态")
)

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// IsErrorCode 检查错误链上是否带有指定错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// CodeOf 提取错误代码；非 AppError 统一归为内部错误
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

// captureStack 捕获简化调用栈（跳过本包内部帧）
func captureStack() string {
	var sb strings.Builder
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			sb.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return sb.String()
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
