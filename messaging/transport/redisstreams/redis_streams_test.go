package redisstreams

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulflow/logging"
	"fulflow/messaging"
)

// fakeStreamClient 记录命令调用的 streamClient 桩
type fakeStreamClient struct {
	mu    sync.Mutex
	added []*redis.XAddArgs
	acked []string
}

func (f *fakeStreamClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
}

func (f *fakeStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStreamClient) Close() error { return nil }

func newFakeTransport(cfg Config) (*Transport, *fakeStreamClient) {
	cfg.fillDefaults()
	cfg.Logger = logging.NewNoopLogger()
	fake := &fakeStreamClient{}
	return &Transport{
		cfg:      cfg,
		client:   fake,
		logger:   cfg.Logger,
		handlers: make(map[string][]messaging.IMessageHandler),
		readers:  make(map[string]*reader),
	}, fake
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []messaging.IMessage
}

func (h *recordingHandler) Handle(ctx context.Context, msg messaging.IMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg)
	return nil
}

func (h *recordingHandler) Type() string { return "recording" }

func TestTransport_PublishAppendsToTypedStream(t *testing.T) {
	tpt, fake := newFakeTransport(Config{StreamPrefix: "wf:"})

	msg := messaging.NewMessage("m1", "process.stage_changed", map[string]any{"process_id": "p1"})
	require.NoError(t, tpt.Publish(context.Background(), msg))

	require.Len(t, fake.added, 1)
	args := fake.added[0]
	assert.Equal(t, "wf:process.stage_changed", args.Stream)
	assert.Equal(t, "m1", args.Values.(map[string]any)["id"])
	assert.Equal(t, "process.stage_changed", args.Values.(map[string]any)["type"])
	// 未配置上限时不裁剪
	assert.Zero(t, args.MaxLen)
	assert.False(t, args.Approx)
}

func TestTransport_PublishTrimsWhenMaxLenSet(t *testing.T) {
	tpt, fake := newFakeTransport(Config{MaxStreamLen: 1000})

	require.NoError(t, tpt.Publish(context.Background(), messaging.NewMessage("m2", "process.created", nil)))

	require.Len(t, fake.added, 1)
	assert.Equal(t, int64(1000), fake.added[0].MaxLen)
	assert.True(t, fake.added[0].Approx)
}

func TestReader_ConsumeDispatchesAndAcks(t *testing.T) {
	tpt, fake := newFakeTransport(Config{})
	h := &recordingHandler{}
	require.NoError(t, tpt.Subscribe("process.created", h))

	values, err := entryValues(messaging.NewMessage("m3", "process.created", map[string]any{"process_id": "p1"}))
	require.NoError(t, err)

	r := &reader{transport: tpt, stream: tpt.streamFor("process.created")}
	r.consume(context.Background(), r.stream, redis.XMessage{ID: "7-0", Values: values})

	require.Len(t, h.seen, 1)
	assert.Equal(t, "process.created", h.seen[0].GetType())
	assert.Equal(t, []string{"7-0"}, fake.acked)
}

func TestReader_PoisonEntryAckedAndDropped(t *testing.T) {
	tpt, fake := newFakeTransport(Config{})
	h := &recordingHandler{}
	require.NoError(t, tpt.Subscribe("process.created", h))

	r := &reader{transport: tpt, stream: tpt.streamFor("process.created")}
	r.consume(context.Background(), r.stream, redis.XMessage{
		ID:     "9-0",
		Values: map[string]any{"id": "m1", "type": "process.created", "payload": "{not json"},
	})

	assert.Empty(t, h.seen)
	assert.Equal(t, []string{"9-0"}, fake.acked)
}

func TestEntryMessage_FallsBackToEntryID(t *testing.T) {
	msg, err := entryMessage(redis.XMessage{
		ID:     "12-0",
		Values: map[string]any{"type": "process.created", "ts": "1700000000000000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "12-0", msg.GetID())
	assert.Equal(t, int64(1700000000000000000), msg.GetTimestamp().UnixNano())
}
