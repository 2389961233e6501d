package memory

import (
	"context"
	"fmt"

	"fulflow/logging"
	"fulflow/messaging"
)

// Start 启动 Worker 池开始处理消息队列
func (t *MemoryTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	if t.running {
		t.mutex.Unlock()
		return fmt.Errorf("memory transport is already running")
	}
	t.running = true

	for i := 0; i < t.workerCount; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
	t.mutex.Unlock()
	return nil
}

// Close 停止所有 Worker 并等待队列中剩余消息处理完成
func (t *MemoryTransport) Close() error {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return fmt.Errorf("memory transport is not running")
	}
	t.running = false
	queue := t.queue
	t.mutex.Unlock()

	// 关闭队列，Worker 读完缓冲中的消息后自然退出
	close(queue)
	t.wg.Wait()
	return nil
}

// worker 从队列取出消息并分发给订阅的处理器
func (t *MemoryTransport) worker(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case message, ok := <-t.queue:
			if !ok {
				return
			}
			t.dispatch(ctx, message)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch 分发消息：精确匹配 + 通配符处理器，逐个调用并记录错误
func (t *MemoryTransport) dispatch(ctx context.Context, message messaging.IMessage) {
	messageType := message.GetType()

	t.mutex.RLock()
	exact := t.handlers[messageType]
	wildcard := t.handlers["*"]
	handlers := make([]messaging.IMessageHandler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	t.mutex.RUnlock()

	for _, handler := range handlers {
		if err := handler.Handle(ctx, message); err != nil {
			// 记录错误但继续调用其他处理器；异步分发，错误不回传发布方
			t.logger.Warn(ctx, "message handler failed",
				logging.String("message_type", messageType),
				logging.String("message_id", message.GetID()),
				logging.Error(err))
		}
	}
}
