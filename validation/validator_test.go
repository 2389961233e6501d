package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fulflow/errors"
)

// TestValidateRequired 测试必填校验
func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("客户A", "customer_account"))
	assert.Error(t, ValidateRequired("", "customer_account"))
	assert.Error(t, ValidateRequired("   ", "customer_account"))

	err := ValidateRequired("", "customer_account")
	assert.True(t, errors.IsValidation(err))
}

// TestValidateStringLength 测试长度校验
func TestValidateStringLength(t *testing.T) {
	assert.NoError(t, ValidateStringLength("ABC", "code", 1, 10))
	assert.Error(t, ValidateStringLength("", "code", 1, 10))
	assert.Error(t, ValidateStringLength("ABCDEFGHIJK", "code", 1, 10))
	// max <= 0 表示不限制上限
	assert.NoError(t, ValidateStringLength("very long value", "code", 1, 0))
}

// TestValidatePositive 测试正数校验
func TestValidatePositive(t *testing.T) {
	assert.NoError(t, ValidatePositive(1.5, "quantity"))
	assert.Error(t, ValidatePositive(0, "quantity"))
	assert.Error(t, ValidatePositive(-2, "quantity"))
}

// TestValidateOneOf 测试枚举取值校验
func TestValidateOneOf(t *testing.T) {
	allowed := []string{"manufacturing", "procurement", "shipment"}
	assert.NoError(t, ValidateOneOf("procurement", "category", allowed))

	err := ValidateOneOf("order", "category", allowed)
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
