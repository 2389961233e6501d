package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulflow/blob"
	"fulflow/monitoring"
	"fulflow/process"
)

func TestService_RollbackCleansUpAttachments(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	store := NewMemoryStore()
	roles := process.StaticRoleResolver{
		"admin": process.RoleAdmin,
		"sales": process.RoleSales,
		"mfg":   process.RoleManufacturing,
	}
	svc := NewService(store, roles, ServiceOptions{Blobs: blobs, Metrics: monitoring.NewMetrics()})
	factory := NewFactory(svc, nil)

	p, _, err := factory.CreateProcess(ctx, process.TypeManufacturing, "ACME", "admin", nil)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, p.ID, process.StageOrderConfirmed, "sales")
	require.NoError(t, err)

	// 上传两份附件并挂到生产子单
	keyA := blob.AttachmentKey(p.ID, "drawing.pdf")
	keyB := blob.AttachmentKey(p.ID, "bom.xlsx")
	_, err = blobs.Put(ctx, keyA, strings.NewReader("drawing"), blob.PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)
	_, err = blobs.Put(ctx, keyB, strings.NewReader("bom"), blob.PutOptions{})
	require.NoError(t, err)

	_, err = factory.CreateChild(ctx, p.ID, process.CategoryManufacturing, "mfg",
		ChildOptions{AttachmentKeys: []string{keyA, keyB}, AutoAdvance: true})
	require.NoError(t, err)

	// 回退清理软删子单后，其附件在事务提交后被尽力删除
	res, err := svc.Transition(ctx, p.ID, process.StageDraft, "admin")
	require.NoError(t, err)
	require.Equal(t, 1, res.Removed[process.CategoryManufacturing])

	_, err = blobs.Head(ctx, keyA)
	assert.Error(t, err)
	_, err = blobs.Head(ctx, keyB)
	assert.Error(t, err)

	// 流程前缀下不再有遗留对象
	infos, err := blobs.List(ctx, blob.ProcessPrefix(p.ID))
	require.NoError(t, err)
	assert.Empty(t, infos)
}
