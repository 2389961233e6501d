package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentKey(t *testing.T) {
	assert.Equal(t, "process/p-1/quote.pdf", AttachmentKey("p-1", "quote.pdf"))
	assert.Equal(t, "process/p-1/", ProcessPrefix("p-1"))
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	assert.Equal(t, DriverMemory, store.Driver())

	_, _, err := store.Get(ctx, "missing")
	assert.Error(t, err)

	key := AttachmentKey("p-1", "quote.pdf")
	info, err := store.Put(ctx, key, bytes.NewReader([]byte("payload")), PutOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"uploaded_by": "sales"},
	})
	require.NoError(t, err)
	assert.Equal(t, key, info.Key)
	assert.Equal(t, int64(7), info.Size)

	// 重复写入同一 key 必须失败
	_, err = store.Put(ctx, key, bytes.NewReader([]byte("other")), PutOptions{})
	assert.Error(t, err)

	got, rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, "sales", got.Metadata["uploaded_by"])

	_, err = store.Put(ctx, AttachmentKey("p-2", "po.pdf"), bytes.NewReader([]byte("x")), PutOptions{})
	require.NoError(t, err)

	infos, err := store.List(ctx, ProcessPrefix("p-1"))
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, key, infos[0].Key)

	_, err = store.PresignURL(ctx, key, SignedURLOptions{})
	assert.ErrorIs(t, err, ErrUnsupported)

	existed, err := store.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = store.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryStore_RejectsBadKeys(t *testing.T) {
	store := NewMemory()
	for _, key := range []string{"", "  ", "../escape", "/absolute"} {
		_, err := store.Put(context.Background(), key, bytes.NewReader(nil), PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestFilesystemStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, store.Driver())

	key := AttachmentKey("p-1", "notes.txt")
	info, err := store.Put(ctx, key, bytes.NewReader([]byte("hello")), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.NotEmpty(t, info.ETag)

	_, err = store.Put(ctx, key, bytes.NewReader([]byte("dup")), PutOptions{})
	assert.Error(t, err)

	head, err := store.Head(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, info.ETag, head.ETag)

	_, rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "hello", string(data))

	infos, err := store.List(ctx, ProcessPrefix("p-1"))
	require.NoError(t, err)
	require.Len(t, infos, 1)

	u, err := store.PresignURL(ctx, key, SignedURLOptions{Method: "GET"})
	require.NoError(t, err)
	assert.Contains(t, u, key)
	_, err = store.PresignURL(ctx, key, SignedURLOptions{Method: "PUT"})
	assert.ErrorIs(t, err, ErrUnsupported)

	existed, err := store.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, existed)
	_, err = store.Head(ctx, key)
	assert.Error(t, err)
}

func TestOpen_MemoryDriver(t *testing.T) {
	t.Setenv("FULFLOW_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, store.Driver())

	t.Setenv("FULFLOW_BLOB_DRIVER", "bogus")
	_, err = Open(context.Background())
	assert.Error(t, err)
}
