package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewError 测试错误创建与基础访问器
func TestNewError(t *testing.T) {
	err := NewError(ErrCodeInvalidTransition, "不能从 completed 流转到 draft")

	assert.Equal(t, ErrCodeInvalidTransition, err.Code())
	assert.Equal(t, "不能从 completed 流转到 draft", err.Message())
	assert.Nil(t, err.Cause())
	assert.Contains(t, err.Error(), "INVALID_TRANSITION")
}

// TestWrapError 测试错误包装与 Unwrap 链
func TestWrapError(t *testing.T) {
	cause := fmt.Errorf("row not found")
	err := WrapError(cause, ErrCodeNotFound, "流程不存在")

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Cause())
	assert.True(t, stdErrors.Is(err, cause))

	// nil 错误包装返回 nil
	assert.Nil(t, WrapError(nil, ErrCodeNotFound, "x"))
}

// TestErrorsIs_SameCode 测试同码错误的 Is 语义
func TestErrorsIs_SameCode(t *testing.T) {
	err := New(ErrCodePermissionDenied, "sales 角色不能进入 in-shipment")

	assert.True(t, stdErrors.Is(err, ErrPermissionDenied))
	assert.False(t, stdErrors.Is(err, ErrInvalidTransition))
}

// TestIsErrorCode 测试错误码提取
func TestIsErrorCode(t *testing.T) {
	err := New(ErrCodeAlreadyExists, "制造单已存在")
	wrapped := fmt.Errorf("create child: %w", err)

	assert.True(t, IsErrorCode(wrapped, ErrCodeAlreadyExists))
	assert.Equal(t, ErrCodeAlreadyExists, CodeOf(wrapped))
	assert.Equal(t, ErrCodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.False(t, IsErrorCode(nil, ErrCodeAlreadyExists))
}

// TestWithDetails 测试详情追加的不可变性
func TestWithDetails(t *testing.T) {
	base := NewError(ErrCodeValidation, "缺少客户账户")
	detailed := base.WithDetails(map[string]any{"field": "customer_account"})

	assert.Empty(t, base.Details())
	assert.Equal(t, "customer_account", detailed.Details()["field"])

	ctxErr := detailed.WithContext("stage", "order-confirmed")
	assert.Equal(t, "order-confirmed", ctxErr.Details()["stage"])
	// 原错误不受影响
	assert.NotContains(t, detailed.Details(), "stage")
}

// TestWrapHelpers 测试带日志的包装辅助函数
func TestWrapHelpers(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, Wrap(ctx, nil, ErrCodeDatabase, "x"))
	assert.Nil(t, WrapWithLog(ctx, nil, ErrCodeDatabase, "x"))

	err := Wrap(ctx, fmt.Errorf("boom"), ErrCodeDatabase, "保存流程失败")
	assert.True(t, IsErrorCode(err, ErrCodeDatabase))

	// NotFound 语义在 WrapDatabaseError 中保持
	nf := WrapDatabaseError(ctx, New(ErrCodeNotFound, "missing"), "查询流程")
	assert.True(t, IsNotFound(nf))
}
