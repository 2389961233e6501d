// Package natsjetstream 基于 NATS JetStream 实现消息传输。
// 全部消息类型共用一条流，主题为前缀加消息类型；消费端以
// durable queue 订阅分摊负载，发布侧带 Nats-Msg-Id 头做服务端
// 去重，保证流程事件至多入流一次。
package natsjetstream

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"fulflow/logging"
	"fulflow/messaging"
)

// Config JetStream 传输配置。零值字段取默认。
type Config struct {
	URL           string
	Stream        string // 流名，默认 "FULFLOW"
	SubjectPrefix string // 主题前缀，默认 "fulflow."
	DurablePrefix string // durable 消费者名前缀，默认 "fulflow-"
	AckWait       time.Duration
	MaxAckPending int
	Logger        logging.Logger
	Conn          *nats.Conn // 外部注入的连接；为空时按 URL 自建

	// 可选流参数
	Retention         string // workqueue|limits|interest（默认 workqueue）
	MaxBytes          int64  // 0 表示不设置
	Replicas          int    // 0 表示默认
	MaxMsgsPerSubject int64  // 每主题最大消息数，默认 -1
}

func (c *Config) fillDefaults() {
	if c.Stream == "" {
		c.Stream = "FULFLOW"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "fulflow."
	}
	if c.DurablePrefix == "" {
		c.DurablePrefix = "fulflow-"
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	if c.MaxAckPending <= 0 {
		c.MaxAckPending = 1024
	}
	if c.Logger == nil {
		c.Logger = logging.GetLogger().WithFields(
			logging.String("component", "transport.natsjetstream"))
	}
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	handlers    map[string][]messaging.IMessageHandler
	subscribers map[string]*subscriber

	mu      sync.RWMutex
	running bool
}

// subscriber 一个消息类型的 durable queue 订阅
type subscriber struct {
	sub *nats.Subscription
}

// NewTransport 创建 JetStream 传输实例
func NewTransport(cfg Config) *Transport {
	cfg.fillDefaults()
	return &Transport{
		cfg:         cfg,
		logger:      cfg.Logger,
		handlers:    make(map[string][]messaging.IMessageHandler),
		subscribers: make(map[string]*subscriber),
	}
}

// Publish 把消息发布到对应主题，消息 ID 作为服务端去重键
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.RLock()
	js := t.js
	running := t.running
	t.mu.RUnlock()
	if !running || js == nil {
		return errors.New("nats 传输未运行")
	}
	data, err := encodeEnvelope(message)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(t.subjectFor(message.GetType()))
	msg.Data = data
	if id := message.GetID(); id != "" {
		msg.Header.Set(nats.MsgIdHdr, id)
	}
	_, err = js.PublishMsg(msg)
	return err
}

// PublishAll 逐条发布
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 注册处理器；传输已启动时立即建立 durable 订阅
func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		return t.subscribeLocked(messageType)
	}
	return nil
}

// Unsubscribe 注销处理器；该类型的最后一个处理器移除后 Drain 订阅
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
	if len(t.handlers[messageType]) == 0 {
		if s, ok := t.subscribers[messageType]; ok {
			_ = s.sub.Drain()
			delete(t.subscribers, messageType)
		}
	}
	return nil
}

// Start 建立连接、确保流存在并为所有已注册类型建立订阅
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats 传输已在运行")
	}
	if err := t.connectLocked(); err != nil {
		return err
	}
	if err := t.ensureStreamLocked(); err != nil {
		return err
	}
	t.running = true
	for mt := range t.handlers {
		if err := t.subscribeLocked(mt); err != nil {
			t.running = false
			return err
		}
	}
	return nil
}

// Close Drain 全部订阅并关闭自建连接
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for mt, s := range t.subscribers {
		_ = s.sub.Drain()
		delete(t.subscribers, mt)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.js = nil
	t.running = false
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

func (t *Transport) connectLocked() error {
	if t.conn != nil && t.js != nil {
		return nil
	}
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url)
		if err != nil {
			return err
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return err
	}
	t.js = js
	return nil
}

func (t *Transport) ensureStreamLocked() error {
	if _, err := t.js.StreamInfo(t.cfg.Stream); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}

	retention := nats.WorkQueuePolicy
	switch strings.ToLower(t.cfg.Retention) {
	case "limits":
		retention = nats.LimitsPolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:              t.cfg.Stream,
		Subjects:          []string{t.cfg.SubjectPrefix + ">"},
		Retention:         retention,
		MaxMsgsPerSubject: -1,
	}
	if t.cfg.MaxMsgsPerSubject != 0 {
		sc.MaxMsgsPerSubject = t.cfg.MaxMsgsPerSubject
	}
	if t.cfg.MaxBytes > 0 {
		sc.MaxBytes = t.cfg.MaxBytes
	}
	if t.cfg.Replicas > 0 {
		sc.Replicas = t.cfg.Replicas
	}
	_, err := t.js.AddStream(sc)
	return err
}

func (t *Transport) subscribeLocked(messageType string) error {
	if _, exists := t.subscribers[messageType]; exists {
		return nil
	}
	// durable 名称不允许包含 '.'
	durable := t.cfg.DurablePrefix + strings.ReplaceAll(messageType, ".", "_")
	sub, err := t.js.QueueSubscribe(t.subjectFor(messageType), durable,
		t.consumerFor(messageType),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending))
	if err != nil {
		return err
	}
	t.subscribers[messageType] = &subscriber{sub: sub}
	return nil
}

// consumerFor 返回一个类型的消费回调。解码失败的消息直接确认
// 丢弃，避免毒消息反复重投。
func (t *Transport) consumerFor(fallbackType string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx := context.Background()
		decoded, err := decodeEnvelope(msg.Data, fallbackType)
		if err != nil {
			t.logger.Warn(ctx, "decode nats message failed",
				logging.String("subject", msg.Subject), logging.Error(err))
			_ = msg.Ack()
			return
		}
		t.dispatch(ctx, decoded)
		if err := msg.Ack(); err != nil {
			t.logger.Warn(ctx, "nats ack failed", logging.Error(err))
		}
	}
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
			t.logger.Warn(ctx, "nats message handler failed",
				logging.String("message_id", message.GetID()),
				logging.String("message_type", message.GetType()),
				logging.Error(err))
		}
	}
}

func (t *Transport) subjectFor(messageType string) string {
	return t.cfg.SubjectPrefix + messageType
}

// envelope 消息在流中的线格式
type envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Metadata  map[string]any  `json:"meta,omitempty"`
}

func encodeEnvelope(msg messaging.IMessage) ([]byte, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return nil, err
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(envelope{
		ID:        msg.GetID(),
		Type:      msg.GetType(),
		Timestamp: ts.UnixNano(),
		Payload:   payload,
		Metadata:  msg.GetMetadata(),
	})
}

// decodeEnvelope 还原消息；线格式缺类型时回退到订阅类型
func decodeEnvelope(data []byte, fallbackType string) (messaging.IMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var payload any
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
	}
	if env.Metadata == nil {
		env.Metadata = make(map[string]any)
	}
	if env.Type == "" {
		env.Type = fallbackType
	}
	return &messaging.Message{
		ID:        env.ID,
		Type:      env.Type,
		Timestamp: time.Unix(0, env.Timestamp),
		Payload:   payload,
		Metadata:  env.Metadata,
	}, nil
}
