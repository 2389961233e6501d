// Package bus 把流程域事件的发布与订阅收敛为一个出口。
// EventBus 在通用消息总线之上做事件语义的收窄：发布前校验事件
// 完整性，订阅侧把裸消息还原成事件再交给处理器。Buffer 配合存储
// 事务使用：提交前暂存、提交后统一发布、回滚时丢弃，保证下游
// 永远观察不到未提交的流程变更。
package bus

import (
	"context"
	"fmt"
	"sync"

	"fulflow/eventing"
	"fulflow/messaging"
)

// Wildcard 匹配全部事件类型
const Wildcard = "*"

// IEventHandler 事件处理器：在消息处理器之上声明自己关心的事件类型
type IEventHandler interface {
	messaging.IMessageHandler
	EventTypes() []string
}

// HandlerFunc 把普通函数适配成事件处理器。
// 未显式指定类型时订阅全部事件；非事件消息直接拒绝。
type HandlerFunc func(ctx context.Context, evt eventing.IEvent) error

func (f HandlerFunc) Handle(ctx context.Context, message messaging.IMessage) error {
	evt, ok := message.(eventing.IEvent)
	if !ok {
		return fmt.Errorf("消息不是流程事件: %T", message)
	}
	return f(ctx, evt)
}

func (f HandlerFunc) Type() string         { return "bus.HandlerFunc" }
func (f HandlerFunc) EventTypes() []string { return []string{Wildcard} }

// IEventBus 事件总线接口
type IEventBus interface {
	Publish(ctx context.Context, evt eventing.IEvent) error
	PublishBatch(ctx context.Context, events []eventing.IEvent) error
	Subscribe(ctx context.Context, handler IEventHandler, eventTypes ...string) error
	Unsubscribe(ctx context.Context, handler IEventHandler, eventTypes ...string) error
}

// EventBus 事件总线：组合一个消息总线承担实际路由与投递
type EventBus struct {
	messages messaging.IMessageBus
}

// New 在给定消息总线上创建事件总线
func New(messages messaging.IMessageBus) *EventBus {
	return &EventBus{messages: messages}
}

// Publish 校验并发布单个事件
func (b *EventBus) Publish(ctx context.Context, evt eventing.IEvent) error {
	if err := checkEvent(evt); err != nil {
		return err
	}
	return b.messages.Publish(ctx, evt)
}

// PublishBatch 校验并批量发布事件；任何一个事件非法则整批拒绝
func (b *EventBus) PublishBatch(ctx context.Context, events []eventing.IEvent) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]messaging.IMessage, len(events))
	for i, evt := range events {
		if err := checkEvent(evt); err != nil {
			return fmt.Errorf("事件 %d/%d 非法: %w", i+1, len(events), err)
		}
		messages[i] = evt
	}
	return b.messages.PublishAll(ctx, messages)
}

// Subscribe 订阅事件。eventTypes 为空时按处理器自己声明的类型订阅。
func (b *EventBus) Subscribe(ctx context.Context, handler IEventHandler, eventTypes ...string) error {
	for _, et := range subscriptionTypes(handler, eventTypes) {
		if err := b.messages.Subscribe(ctx, et, handler); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe 取消订阅，类型解析规则与 Subscribe 一致
func (b *EventBus) Unsubscribe(ctx context.Context, handler IEventHandler, eventTypes ...string) error {
	for _, et := range subscriptionTypes(handler, eventTypes) {
		if err := b.messages.Unsubscribe(ctx, et, handler); err != nil {
			return err
		}
	}
	return nil
}

// Buffer 创建绑定到本总线的事务暂存区
func (b *EventBus) Buffer() *Buffer {
	return &Buffer{bus: b}
}

func subscriptionTypes(handler IEventHandler, override []string) []string {
	if len(override) > 0 {
		return override
	}
	types := handler.EventTypes()
	if len(types) == 0 {
		return []string{Wildcard}
	}
	return types
}

func checkEvent(evt eventing.IEvent) error {
	type validatable interface{ Validate() error }
	if v, ok := evt.(validatable); ok {
		return v.Validate()
	}
	return nil
}

// Buffer 在一个工作单元内暂存事件，待事务提交后统一发布
type Buffer struct {
	mu      sync.Mutex
	bus     IEventBus
	pending []eventing.IEvent
}

// NewBuffer 在指定总线上创建暂存区
func NewBuffer(bus IEventBus) *Buffer {
	return &Buffer{bus: bus}
}

// Add 暂存一个事件
func (buf *Buffer) Add(evt eventing.IEvent) {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.pending = append(buf.pending, evt)
}

// Len 返回当前暂存的事件数
func (buf *Buffer) Len() int {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.pending)
}

// Flush 发布所有暂存事件并清空缓冲
func (buf *Buffer) Flush(ctx context.Context) error {
	buf.mu.Lock()
	events := buf.pending
	buf.pending = nil
	buf.mu.Unlock()
	if len(events) == 0 {
		return nil
	}
	return buf.bus.PublishBatch(ctx, events)
}

// Discard 丢弃所有暂存事件
func (buf *Buffer) Discard() {
	buf.mu.Lock()
	buf.pending = nil
	buf.mu.Unlock()
}
