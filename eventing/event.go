// Package eventing 定义流程域事件：在消息基础上附加聚合信息，
// 供事件总线路由与下游系统订阅。
package eventing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"fulflow/messaging"
)

// IEvent 基础事件接口（用于事件传输/路由）
// 包含事件分发的最小必要信息
type IEvent interface {
	messaging.IMessage

	// 聚合信息（用于路由和关联）
	GetAggregateID() string
	GetAggregateType() string
	GetVersion() uint64
}

// Event 领域事件实现
type Event struct {
	messaging.Message
	AggregateID   string `json:"aggregate_id"`
	AggregateType string `json:"aggregate_type"`
	Version       uint64 `json:"version"`
}

func (e *Event) GetAggregateID() string   { return e.AggregateID }
func (e *Event) GetAggregateType() string { return e.AggregateType }
func (e *Event) GetVersion() uint64       { return e.Version }

func (e *Event) Validate() error {
	if e.GetID() == "" {
		return fmt.Errorf("事件ID不能为空")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("聚合ID不能为空")
	}
	if e.AggregateType == "" {
		return fmt.Errorf("聚合类型不能为空")
	}
	if e.GetType() == "" {
		return fmt.Errorf("事件类型不能为空")
	}
	return nil
}

// NewEvent 创建事件
func NewEvent(aggregateID, aggregateType, eventType string, version uint64, data any) *Event {
	return &Event{
		Message: messaging.Message{
			ID:        uuid.NewString(),
			Type:      eventType,
			Timestamp: time.Now(),
			Payload:   data,
			Metadata:  make(map[string]any),
		},
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
	}
}
