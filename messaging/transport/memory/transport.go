// Package memory 提供基于内存队列的异步消息传输实现。
// 适用于单机部署、开发环境和测试场景。
package memory

import (
	"context"
	"fmt"
	"sync"

	"fulflow/logging"
	"fulflow/messaging"
)

// MemoryTransport 内存消息传输实现。
// 消息进入有界队列，由 Worker 池异步分发；handler 错误不会传播给发布方。
type MemoryTransport struct {
	handlers    map[string][]messaging.IMessageHandler
	queue       chan messaging.IMessage
	queueSize   int
	workerCount int
	running     bool
	mutex       sync.RWMutex
	wg          sync.WaitGroup
	logger      logging.Logger
}

// NewMemoryTransport 创建内存传输实例。
// queueSize <= 0 时使用默认 1000，workerCount <= 0 时使用默认 4。
func NewMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	return newMemoryTransport(queueSize, workerCount)
}

// NewMemoryTransportForTest 创建 0 worker 的传输实例，仅用于测试队列行为。
// 生产代码应始终使用 NewMemoryTransport，避免消息永远不被消费。
func NewMemoryTransportForTest(queueSize int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return newMemoryTransport(queueSize, 0)
}

func newMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	return &MemoryTransport{
		handlers:    make(map[string][]messaging.IMessageHandler),
		queue:       make(chan messaging.IMessage, queueSize),
		queueSize:   queueSize,
		workerCount: workerCount,
		logger: logging.GetLogger().WithFields(
			logging.String("component", "messaging.memory"),
		),
	}
}

// Publish 发布消息到队列，队列满或未启动时返回错误
func (t *MemoryTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mutex.RLock()
	running := t.running
	t.mutex.RUnlock()
	if !running {
		return fmt.Errorf("memory transport is not running")
	}

	select {
	case t.queue <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("message queue is full")
	}
}

// PublishAll 批量发布消息到队列
func (t *MemoryTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	if len(messages) == 0 {
		return nil
	}

	t.mutex.RLock()
	running := t.running
	t.mutex.RUnlock()
	if !running {
		return fmt.Errorf("memory transport is not running")
	}

	for _, message := range messages {
		select {
		case t.queue <- message:
		case <-ctx.Done():
			return ctx.Err()
		default:
			return fmt.Errorf("message queue is full")
		}
	}
	return nil
}

// Subscribe 订阅消息处理器，支持 "*" 通配符
func (t *MemoryTransport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Unsubscribe 取消订阅消息处理器
func (t *MemoryTransport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	handlers, ok := t.handlers[messageType]
	if !ok {
		return fmt.Errorf("no handlers for message type %s", messageType)
	}
	for i, h := range handlers {
		if h == handler {
			t.handlers[messageType] = append(handlers[:i], handlers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("handler not found for message type %s", messageType)
}

// Stats 获取统计信息
func (t *MemoryTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	handlerCount := 0
	messageTypes := make([]string, 0, len(t.handlers))
	for messageType, handlers := range t.handlers {
		messageTypes = append(messageTypes, messageType)
		handlerCount += len(handlers)
	}
	return messaging.TransportStats{
		Running:      t.running,
		HandlerCount: handlerCount,
		MessageTypes: messageTypes,
		QueueSize:    t.queueSize,
		QueueDepth:   len(t.queue),
		WorkerCount:  t.workerCount,
	}
}
