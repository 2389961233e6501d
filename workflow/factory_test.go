package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulflow/errors"
	"fulflow/process"
)

func TestFactory_CreateProcess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, so, err := env.factory.CreateProcess(ctx, process.TypeHybrid, "ACME", "admin",
		[]ItemSpec{
			{ItemCode: "SKU-1", Name: "widget", Quantity: 2, Unit: "pcs"},
			{ItemCode: "SKU-2", Name: "gadget", Quantity: 1, Unit: "box"},
		})
	require.NoError(t, err)
	assert.Equal(t, process.StageDraft, p.Stage)
	assert.Equal(t, process.ActiveSalesOrder, p.ActiveCategory)
	assert.Equal(t, so.ID, p.SalesOrderID)
	assert.Equal(t, process.CategoryOrder, so.Category)
	assert.Equal(t, process.ChildDraft, so.Status)

	items, err := env.store.ListLineItems(ctx, so.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	assert.Equal(t, 1, env.countEvents(EventProcessCreated))
	assert.Equal(t, 1, env.countEvents(EventChildCreated))
}

func TestFactory_CreateProcess_InputValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.factory.CreateProcess(ctx, process.ProcessType("bogus"), "ACME", "admin", nil)
	assert.True(t, errors.IsValidation(err))

	_, _, err = env.factory.CreateProcess(ctx, process.TypeHybrid, "", "admin", nil)
	assert.True(t, errors.IsValidation(err))

	_, _, err = env.factory.CreateProcess(ctx, process.TypeHybrid, "ACME", "admin",
		[]ItemSpec{{ItemCode: "SKU-1", Quantity: 0}})
	assert.True(t, errors.IsValidation(err))
}

func TestFactory_CreateChild_CopiesLineItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newConfirmed(t, process.TypeManufacturing)

	child, err := env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg", ChildOptions{})
	require.NoError(t, err)
	assert.Equal(t, process.CategoryManufacturing, child.Category)
	assert.Equal(t, process.ChildDraft, child.Status)
	assert.Equal(t, "MO", child.Code[:2])

	// 行项目自销售订单拷贝，挂到新子单名下
	items, err := env.store.ListLineItems(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SKU-1", items[0].ItemCode)
	assert.Equal(t, process.CategoryManufacturing, items[0].Category)

	// WithoutItems 跳过拷贝
	noItems, err := env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg",
		ChildOptions{Force: true, WithoutItems: true})
	require.NoError(t, err)
	items, err = env.store.ListLineItems(ctx, noItems.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFactory_CreateChild_Idempotency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newConfirmed(t, process.TypeManufacturing)

	first, err := env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg", ChildOptions{})
	require.NoError(t, err)

	// 同类别已存在未删除子单：默认被拒
	_, err = env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg", ChildOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeAlreadyExists))

	// Force 显式放行
	second, err := env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg",
		ChildOptions{Force: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// 原有子单被回退清理软删后，幂等保护解除
	_, err = env.factory.CreateChild(ctx, p.ID, process.CategoryShipment, "logistics", ChildOptions{})
	require.NoError(t, err)
	_, err = env.svc.Transition(ctx, p.ID, process.StageDraft, "admin")
	require.NoError(t, err)
	_, err = env.svc.Transition(ctx, p.ID, process.StageOrderConfirmed, "sales")
	require.NoError(t, err)
	_, err = env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg", ChildOptions{})
	require.NoError(t, err)
}

func TestFactory_CreateChild_CategoryRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 销售订单只随流程创建
	p := env.newConfirmed(t, process.TypeManufacturing)
	_, err := env.factory.CreateChild(ctx, p.ID, process.CategoryOrder, "sales", ChildOptions{})
	assert.True(t, errors.IsValidation(err))

	// 纯生产流程不允许采购子单
	_, err = env.factory.CreateChild(ctx, p.ID, process.CategoryProcurement, "proc", ChildOptions{})
	assert.True(t, errors.IsValidation(err))

	// 纯采购流程不允许生产子单
	pp := env.newConfirmed(t, process.TypeProcurement)
	_, err = env.factory.CreateChild(ctx, pp.ID, process.CategoryManufacturing, "mfg", ChildOptions{})
	assert.True(t, errors.IsValidation(err))

	_, err = env.factory.CreateChild(ctx, p.ID, process.Category("bogus"), "admin", ChildOptions{})
	assert.True(t, errors.IsValidation(err))
}

func TestFactory_CreateChild_AutoAdvanceFailureKeepsChild(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p, _, err := env.factory.CreateProcess(ctx, process.TypeManufacturing, "ACME", "admin", nil)
	require.NoError(t, err)

	// 草稿态不允许直达生产：推进失败，但子单创建已提交
	child, err := env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg",
		ChildOptions{AutoAdvance: true})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidTransition))
	require.NotNil(t, child)
	assert.Equal(t, process.StageDraft, env.reload(t, p.ID).Stage)
	assert.Equal(t, process.ChildDraft, env.reloadChild(t, child.ID).Status)
}

func TestFactory_HybridCombinedStageViaAutoAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newConfirmed(t, process.TypeHybrid)

	mfgChild, err := env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg",
		ChildOptions{AutoAdvance: true})
	require.NoError(t, err)
	require.Equal(t, process.StageInManufacturing, env.reload(t, p.ID).Stage)

	// 生产已进行中时再建采购子单：自动推进并入合并阶段
	procChild, err := env.factory.CreateChild(ctx, p.ID, process.CategoryProcurement, "proc",
		ChildOptions{AutoAdvance: true})
	require.NoError(t, err)

	got := env.reload(t, p.ID)
	assert.Equal(t, process.StageInProcAndMfg, got.Stage)
	assert.Equal(t, process.ActiveMfgAndProc, got.ActiveCategory)
	// 合并阶段的正向同步把两个类别都置为 active
	assert.Equal(t, process.ChildActive, env.reloadChild(t, mfgChild.ID).Status)
	assert.Equal(t, process.ChildActive, env.reloadChild(t, procChild.ID).Status)

	// 合并阶段的完成需要两个类别都齐备
	res, err := env.sync.ChildCompleted(ctx, mfgChild.ID, "mfg")
	require.NoError(t, err)
	assert.False(t, res.Attempted)
	res, err = env.sync.ChildCompleted(ctx, procChild.ID, "proc")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, process.StageProcAndMfgCompleted, env.reload(t, p.ID).Stage)
}

func TestFactory_CreateChild_AlreadyAtImpliedStageSkipsTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newConfirmed(t, process.TypeManufacturing)

	_, err := env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg",
		ChildOptions{AutoAdvance: true})
	require.NoError(t, err)
	require.Equal(t, process.StageInManufacturing, env.reload(t, p.ID).Stage)

	// 已处于推算目标阶段：Force 创建第二张时不再流转
	_, err = env.factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg",
		ChildOptions{Force: true, AutoAdvance: true})
	require.NoError(t, err)
	assert.Equal(t, process.StageInManufacturing, env.reload(t, p.ID).Stage)
}
