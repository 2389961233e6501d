package process

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessType(t *testing.T) {
	// 类型合法性
	assert.True(t, TypeHybrid.Valid())
	assert.False(t, ProcessType("unknown").Valid())

	// 类别兼容性：纯生产流程拒绝采购子单，反之亦然
	assert.True(t, TypeManufacturing.AllowsCategory(CategoryManufacturing))
	assert.False(t, TypeManufacturing.AllowsCategory(CategoryProcurement))
	assert.False(t, TypeProcurement.AllowsCategory(CategoryManufacturing))
	assert.True(t, TypeHybrid.AllowsCategory(CategoryManufacturing))
	assert.True(t, TypeHybrid.AllowsCategory(CategoryProcurement))
	// 订单与发运类别对所有类型可用
	for _, pt := range []ProcessType{TypeManufacturing, TypeProcurement, TypeHybrid} {
		assert.True(t, pt.AllowsCategory(CategoryOrder))
		assert.True(t, pt.AllowsCategory(CategoryShipment))
	}
}

func TestStageEnum(t *testing.T) {
	assert.Len(t, Stages(), 13)
	for _, s := range Stages() {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Stage("bogus").Valid())
	assert.True(t, StageCompleted.Terminal())
	assert.True(t, StageCancelled.Terminal())
	assert.False(t, StageIssueReported.Terminal())
}

func TestChildStatus_SyncTerminal(t *testing.T) {
	assert.True(t, ChildCancelled.SyncTerminal())
	assert.True(t, ChildIssueReported.SyncTerminal())
	assert.False(t, ChildActive.SyncTerminal())
	assert.False(t, ChildCompleted.SyncTerminal())
	assert.False(t, ChildDraft.SyncTerminal())
}

func TestActiveCategory_Categories(t *testing.T) {
	assert.Nil(t, ActiveNone.Categories())
	assert.Equal(t, []Category{CategoryManufacturing}, ActiveManufacturing.Categories())
	assert.Equal(t, []Category{CategoryManufacturing, CategoryProcurement}, ActiveMfgAndProc.Categories())
	assert.Equal(t, []Category{CategoryShipment}, ActiveShipment.Categories())
}

func TestNewProcess(t *testing.T) {
	p := NewProcess(TypeHybrid, "ACME", "alice")
	assert.NotEmpty(t, p.ID)
	assert.True(t, strings.HasPrefix(p.Code, "FP-"))
	assert.Equal(t, StageDraft, p.Stage)
	assert.Equal(t, ActiveSalesOrder, p.ActiveCategory)
	assert.Equal(t, "alice", p.CreatedBy)
	require.NoError(t, p.Validate())

	// 缺客户账号时校验失败
	p2 := NewProcess(TypeHybrid, "", "alice")
	assert.Error(t, p2.Validate())
}

func TestProcess_StampStageEntry(t *testing.T) {
	p := NewProcess(TypeManufacturing, "ACME", "alice")
	at := time.Now()

	p.StampStageEntry(StageOrderConfirmed, at)
	require.NotNil(t, p.ConfirmedAt)
	assert.Equal(t, at, *p.ConfirmedAt)

	// 无专属时间戳的阶段不产生写入
	p.StampStageEntry(StageInManufacturing, at)
	assert.Nil(t, p.CompletedAt)
	assert.Nil(t, p.CancelledAt)

	p.StampStageEntry(StageCompleted, at)
	assert.NotNil(t, p.CompletedAt)
	p.StampStageEntry(StageCancelled, at)
	assert.NotNil(t, p.CancelledAt)
}

func TestProcess_Clone(t *testing.T) {
	p := NewProcess(TypeHybrid, "ACME", "alice")
	at := time.Now()
	p.StampStageEntry(StageOrderConfirmed, at)

	c := p.Clone()
	c.Stage = StageOrderConfirmed
	*c.ConfirmedAt = at.Add(time.Hour)

	assert.Equal(t, StageDraft, p.Stage)
	assert.Equal(t, at, *p.ConfirmedAt)
}

func TestNewChild(t *testing.T) {
	c := NewChild("proc-1", CategoryManufacturing, "批次A", "bob")
	assert.True(t, strings.HasPrefix(c.Code, "MO-"))
	assert.Equal(t, ChildDraft, c.Status)
	assert.Equal(t, "proc-1", c.ProcessID)
	require.NoError(t, c.Validate())

	so := NewSalesOrder("proc-1", "订单", "bob")
	assert.Equal(t, CategoryOrder, so.Category)
	assert.True(t, strings.HasPrefix(so.Code, "SO-"))
}

func TestChild_Clone(t *testing.T) {
	c := NewChild("proc-1", CategoryShipment, "", "bob")
	c.AttachmentKeys = []string{"process/proc-1/a.pdf"}

	cp := c.Clone()
	cp.AttachmentKeys[0] = "changed"
	cp.Status = ChildActive

	assert.Equal(t, "process/proc-1/a.pdf", c.AttachmentKeys[0])
	assert.Equal(t, ChildDraft, c.Status)
}

func TestLineItem(t *testing.T) {
	item := NewLineItem("so-1", CategoryOrder, "SKU-1", "物料A", 5, "pcs", "bob")
	require.NoError(t, item.Validate())

	copied := item.CopyFor("mo-1", CategoryManufacturing, "bob")
	assert.Equal(t, "mo-1", copied.ParentID)
	assert.Equal(t, CategoryManufacturing, copied.Category)
	assert.Equal(t, item.ItemCode, copied.ItemCode)
	assert.Equal(t, item.Quantity, copied.Quantity)
	assert.NotEqual(t, item.ID, copied.ID)

	bad := NewLineItem("so-1", CategoryOrder, "SKU-2", "物料B", 0, "pcs", "bob")
	assert.Error(t, bad.Validate())
}

func TestStaticRoleResolver(t *testing.T) {
	resolver := StaticRoleResolver{"alice": RoleAdmin, "bob": RoleManufacturing}
	role, err := resolver.RoleOf(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = resolver.RoleOf(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, RoleID(""), role)
}
