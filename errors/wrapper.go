package errors

import (
	"context"
	"fmt"
	"runtime"

	"fulflow/logging"
)

// Wrap 包装错误，添加错误码和业务上下文。
// 建议在服务层边界使用。
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)
	logging.GetLogger().Debug(ctx, fmt.Sprintf("错误包装: %s (位置: %s:%d)", msg, file, line))
	return wrapped
}

// WrapWithLog 包装错误并立即记录警告日志。
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)

	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)
	logging.GetLogger().Warn(ctx, msg, allFields...)

	return wrapped
}

// WrapDatabaseError 包装数据库错误，NotFound 保持语义不变。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return WrapError(err, ErrCodeNotFound, operation)
	}
	return WrapWithLog(ctx, err, ErrCodeDatabase,
		fmt.Sprintf("数据库操作失败: %s", operation),
		logging.String("operation", operation),
	)
}

// New 创建新错误（带调用位置）
func New(code ErrorCode, msg string) error {
	_, file, line, _ := runtime.Caller(1)
	return NewError(code, fmt.Sprintf("%s (位置: %s:%d)", msg, file, line))
}

// NewValidationError 创建验证错误
func NewValidationError(msg string) error {
	return New(ErrCodeValidation, msg)
}
