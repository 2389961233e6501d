package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEntity_AuditInfo 测试审计信息设置与版本递增
func TestEntity_AuditInfo(t *testing.T) {
	e := &Entity{ID: "p-1"}
	now := time.Now()

	e.SetCreatedInfo("alice", now)
	assert.Equal(t, "alice", e.GetCreatedBy())
	assert.Equal(t, now, e.GetCreatedAt())
	assert.EqualValues(t, 0, e.GetVersion())

	e.SetUpdatedInfo("bob", now.Add(time.Minute))
	assert.Equal(t, "bob", e.GetUpdatedBy())
	assert.EqualValues(t, 1, e.GetVersion())
}

// TestEntity_SoftDeleteRestore 测试软删/恢复往返
func TestEntity_SoftDeleteRestore(t *testing.T) {
	e := &Entity{ID: "c-1"}
	now := time.Now()

	require.NoError(t, e.SoftDelete("alice", now))
	assert.True(t, e.IsDeleted())
	assert.Equal(t, "alice", *e.GetDeletedBy())
	assert.EqualValues(t, 1, e.GetVersion())

	// 重复软删报错
	err := e.SoftDelete("bob", now)
	assert.True(t, errors.Is(err, ErrAlreadyDeleted))

	require.NoError(t, e.Restore())
	assert.False(t, e.IsDeleted())
	assert.Nil(t, e.GetDeletedAt())
	assert.EqualValues(t, 2, e.GetVersion())

	// 恢复未删除实体报错
	err = e.Restore()
	assert.True(t, errors.Is(err, ErrNotDeleted))
}

// TestRepositoryError_Is 测试仓储错误哨兵匹配
func TestRepositoryError_Is(t *testing.T) {
	err := NewVersionConflictError("p-1", 2, 3)
	assert.True(t, errors.Is(err, ErrVersionConflict))
	assert.False(t, errors.Is(err, ErrEntityNotFound))

	nf := NewNotFoundError("process %s not found", "p-2")
	assert.True(t, errors.Is(nf, ErrEntityNotFound))
	assert.Contains(t, nf.Error(), "p-2")
}
