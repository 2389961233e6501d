package workflow

import (
	"fmt"

	"fulflow/errors"
	"fulflow/process"
)

// 错误构造辅助：所有对外错误都带上失败的阶段/类别/字段，
// 通过 errors.Is 与 errors 包的哨兵（按错误码）匹配。

func newInvalidTransitionError(from, to process.Stage) error {
	return errors.NewError(errors.ErrCodeInvalidTransition,
		fmt.Sprintf("不允许从 %s 流转到 %s", from, to)).
		WithContext("from", string(from)).
		WithContext("to", string(to))
}

func newPermissionDeniedError(role process.RoleID, target process.Stage) error {
	return errors.NewError(errors.ErrCodePermissionDenied,
		fmt.Sprintf("角色 %s 无权流转到 %s", role, target)).
		WithContext("role", string(role)).
		WithContext("target", string(target))
}

func newValidationError(target process.Stage, reason string) error {
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("流转到 %s 的前置条件不满足: %s", target, reason)).
		WithContext("target", string(target))
}

func newMissingChildrenError(target process.Stage, category process.Category) error {
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("流转到 %s 要求至少一张未删除的 %s 子单", target, category)).
		WithContext("target", string(target)).
		WithContext("category", string(category))
}

func newAlreadyExistsError(category process.Category, existingID string) error {
	return errors.NewError(errors.ErrCodeAlreadyExists,
		fmt.Sprintf("类别 %s 已存在未删除子单", category)).
		WithContext("category", string(category)).
		WithContext("existing_id", existingID)
}

func newNotInIssueStateError(current process.Stage) error {
	return errors.NewError(errors.ErrCodeNotInIssueState,
		fmt.Sprintf("流程当前处于 %s，不在异常上报状态", current)).
		WithContext("current", string(current))
}
