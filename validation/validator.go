// Package validation 提供实体与服务入参的字段级验证辅助函数。
package validation

import (
	"fmt"
	"strings"

	"fulflow/errors"
)

// IValidator 定义通用验证器接口
type IValidator interface {
	Validate(value any) error
}

// NoopValidator 默认验证器，实现为空操作
type NoopValidator struct{}

// Validate 实现 IValidator 接口
func (NoopValidator) Validate(value any) error {
	return nil
}

// NewValidationError 创建验证错误
func NewValidationError(message string) error {
	return errors.NewValidationError(message)
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidateStringLength 验证字符串长度
func ValidateStringLength(value, fieldName string, min, max int) error {
	length := len(value)
	if length < min {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能少于%d个字符（当前%d）", fieldName, min, length))
	}
	if max > 0 && length > max {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能超过%d个字符（当前%d）", fieldName, max, length))
	}
	return nil
}

// ValidatePositive 验证正数（用于行项目数量等）
func ValidatePositive(value float64, fieldName string) error {
	if value <= 0 {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s必须为正数（当前%v）", fieldName, value))
	}
	return nil
}

// ValidateOneOf 验证取值属于给定集合（用于枚举入参）
func ValidateOneOf(value, fieldName string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s取值非法: %s（允许: %s）", fieldName, value, strings.Join(allowed, "/")))
}
