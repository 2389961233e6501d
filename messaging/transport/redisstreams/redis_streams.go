// Package redisstreams 基于 Redis Streams 消费组实现消息传输。
// 每种消息类型一条 Stream，流程生命周期事件经由它广播给报表、
// 通知等下游服务；消费端以同组不同 consumer 分摊负载。
package redisstreams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fulflow/logging"
	"fulflow/messaging"
)

// streamClient 收敛本包依赖的 go-redis 命令子集，便于测试替换
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

// Config Redis Streams 传输配置。零值字段取默认。
type Config struct {
	Client       redis.UniversalClient // 外部注入的客户端；为空时按 Addr 自建
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string // 默认 "fulflow:"
	GroupName    string // 消费组名，默认 "fulflow"
	ConsumerName string // 组内消费者名，默认随机
	BlockTimeout time.Duration
	ReadCount    int64
	MaxStreamLen int64 // 每条 Stream 的近似长度上限（XADD MAXLEN ~），0 表示不裁剪
	Logger       logging.Logger

	// 读取出错时的退避区间
	MinReadBackoff time.Duration // 默认 100ms
	MaxReadBackoff time.Duration // 默认 5s
}

func (c *Config) fillDefaults() {
	if c.StreamPrefix == "" {
		c.StreamPrefix = "fulflow:"
	}
	if c.GroupName == "" {
		c.GroupName = "fulflow"
	}
	if c.ConsumerName == "" {
		c.ConsumerName = "consumer-" + uuid.NewString()
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.ReadCount <= 0 {
		c.ReadCount = 10
	}
	if c.MinReadBackoff <= 0 {
		c.MinReadBackoff = 100 * time.Millisecond
	}
	if c.MaxReadBackoff <= 0 {
		c.MaxReadBackoff = 5 * time.Second
	}
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg       Config
	client    streamClient
	ownClient bool
	logger    logging.Logger

	handlers map[string][]messaging.IMessageHandler
	readers  map[string]*reader

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTransport 创建 Redis Streams 传输实例
func NewTransport(cfg Config) (*Transport, error) {
	cfg.fillDefaults()

	var cl streamClient
	var own bool
	switch {
	case cfg.Client != nil:
		cl = cfg.Client
	case cfg.Addr != "":
		cl = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		own = true
	default:
		return nil, errors.New("redis 客户端未配置")
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(
			logging.String("component", "transport.redisstreams"))
	}

	return &Transport{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    cfg.Logger,
		handlers:  make(map[string][]messaging.IMessageHandler),
		readers:   make(map[string]*reader),
	}, nil
}

// Publish 把消息追加到对应类型的 Stream
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	values, err := entryValues(message)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: t.streamFor(message.GetType()),
		Values: values,
	}
	if t.cfg.MaxStreamLen > 0 {
		args.MaxLen = t.cfg.MaxStreamLen
		args.Approx = true
	}
	return t.client.XAdd(ctx, args).Err()
}

// PublishAll 逐条追加。Redis Streams 没有跨 Stream 的批量写入。
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publish %s: %w", msg.GetID(), err)
		}
	}
	return nil
}

// Subscribe 注册处理器；传输已启动时立即为该类型开启消费
func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		t.spawnReaderLocked(messageType)
	}
	return nil
}

// Unsubscribe 注销处理器（未注册时为空操作）
func (t *Transport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	handlers := t.handlers[messageType]
	for i, h := range handlers {
		if h == handler {
			t.handlers[messageType] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	return nil
}

// Start 为每个已订阅的消息类型启动后台消费循环
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("redis streams 传输已在运行")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true
	for mt := range t.handlers {
		t.spawnReaderLocked(mt)
	}
	return nil
}

// Close 停止全部消费循环，自建客户端随之关闭
func (t *Transport) Close() error {
	t.mu.Lock()
	running := t.running
	t.running = false
	cancel := t.cancel
	t.mu.Unlock()

	if running && cancel != nil {
		cancel()
		t.wg.Wait()
	}
	if t.ownClient {
		return t.client.Close()
	}
	return nil
}

// Stats 返回处理器与消息类型统计
func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handlerCount := 0
	types := make([]string, 0, len(t.handlers))
	for mt, hs := range t.handlers {
		handlerCount += len(hs)
		types = append(types, mt)
	}
	return messaging.TransportStats{
		Running:      t.running,
		HandlerCount: handlerCount,
		MessageTypes: types,
	}
}

func (t *Transport) streamFor(messageType string) string {
	return t.cfg.StreamPrefix + messageType
}

func (t *Transport) spawnReaderLocked(messageType string) {
	if _, exists := t.readers[messageType]; exists {
		return
	}
	r := &reader{
		transport: t,
		stream:    t.streamFor(messageType),
		backoff:   t.cfg.MinReadBackoff,
	}
	t.readers[messageType] = r
	t.wg.Add(1)
	go r.run(t.ctx)
}

// reader 一条 Stream 的消费循环：确保消费组存在，阻塞读取、
// 分发、确认；读取出错时按指数退避重试。
type reader struct {
	transport *Transport
	stream    string
	backoff   time.Duration
}

func (r *reader) run(ctx context.Context) {
	t := r.transport
	defer t.wg.Done()

	if err := r.ensureGroup(ctx); err != nil {
		t.logger.Warn(ctx, "ensure consumer group failed",
			logging.String("stream", r.stream), logging.Error(err))
	}

	args := &redis.XReadGroupArgs{
		Group:    t.cfg.GroupName,
		Consumer: t.cfg.ConsumerName,
		Streams:  []string{r.stream, ">"},
		Count:    t.cfg.ReadCount,
		Block:    t.cfg.BlockTimeout,
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			t.logger.Warn(ctx, "xreadgroup failed",
				logging.String("stream", r.stream),
				logging.Duration("backoff", r.backoff), logging.Error(err))
			time.Sleep(r.backoff)
			if r.backoff *= 2; r.backoff > t.cfg.MaxReadBackoff {
				r.backoff = t.cfg.MaxReadBackoff
			}
			continue
		}
		r.backoff = t.cfg.MinReadBackoff
		for _, streamRes := range res {
			for _, entry := range streamRes.Messages {
				r.consume(ctx, streamRes.Stream, entry)
			}
		}
	}
}

// consume 解析单条记录并分发。解析失败的记录直接确认丢弃，
// 避免毒消息卡死消费组。
func (r *reader) consume(ctx context.Context, stream string, entry redis.XMessage) {
	t := r.transport
	msg, err := entryMessage(entry)
	if err != nil {
		t.logger.Warn(ctx, "decode stream entry failed",
			logging.String("stream", stream),
			logging.String("entry_id", entry.ID), logging.Error(err))
		_ = t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err()
		return
	}
	t.dispatch(ctx, msg)
	if err := t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err(); err != nil {
		t.logger.Warn(ctx, "xack failed",
			logging.String("stream", stream), logging.Error(err))
	}
}

func (r *reader) ensureGroup(ctx context.Context) error {
	t := r.transport
	err := t.client.XGroupCreateMkStream(ctx, r.stream, t.cfg.GroupName, "0").Err()
	if err == nil || strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return nil
	}
	return err
}

func (t *Transport) dispatch(ctx context.Context, message messaging.IMessage) {
	t.mu.RLock()
	exact := t.handlers[message.GetType()]
	wildcard := t.handlers["*"]
	handlers := make([]messaging.IMessageHandler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	t.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, message); err != nil {
			t.logger.Warn(ctx, "stream message handler failed",
				logging.String("message_id", message.GetID()),
				logging.String("message_type", message.GetType()),
				logging.Error(err))
		}
	}
}

// entryValues 把消息拍平成 Stream 记录的字段表
func entryValues(msg messaging.IMessage) (map[string]any, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(msg.GetMetadata())
	if err != nil {
		return nil, err
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"id":      msg.GetID(),
		"type":    msg.GetType(),
		"ts":      ts.UnixNano(),
		"payload": string(payload),
		"meta":    string(metadata),
	}, nil
}

// entryMessage 从 Stream 记录还原消息；缺失 id 时回退到记录 ID
func entryMessage(entry redis.XMessage) (messaging.IMessage, error) {
	id, _ := entry.Values["id"].(string)
	msgType, _ := entry.Values["type"].(string)
	payloadRaw, _ := entry.Values["payload"].(string)
	metaRaw, _ := entry.Values["meta"].(string)

	var payload any
	if payloadRaw != "" {
		if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
			return nil, err
		}
	}
	metadata := make(map[string]any)
	if metaRaw != "" {
		if err := json.Unmarshal([]byte(metaRaw), &metadata); err != nil {
			return nil, err
		}
	}

	ts := time.Now()
	switch v := entry.Values["ts"].(type) {
	case int64:
		ts = time.Unix(0, v)
	case string:
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			ts = time.Unix(0, ns)
		}
	}

	if id == "" {
		id = entry.ID
	}
	return &messaging.Message{
		ID:        id,
		Type:      msgType,
		Timestamp: ts,
		Payload:   payload,
		Metadata:  metadata,
	}, nil
}
