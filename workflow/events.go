package workflow

import (
	"context"

	"fulflow/eventing"
	"fulflow/eventing/bus"
	"fulflow/logging"
	"fulflow/process"
)

// 流程域事件类型
const (
	EventProcessCreated     = "process.created"
	EventStageChanged       = "process.stage_changed"
	EventChildrenRemoved    = "process.children_removed"
	EventIssueReported      = "process.issue_reported"
	EventIssueResolved      = "process.issue_resolved"
	EventChildCreated       = "child.created"
	EventChildStatusChanged = "child.status_changed"
)

const aggregateProcess = "Process"

// publisher 事件发布辅助：总线未配置时静默跳过，发布失败只记日志。
// 事件在事务提交后发布，提交前的缓冲由调用方的 Recorder 承担。
type publisher struct {
	events *bus.EventBus
	logger logging.Logger
}

func (p publisher) buffer() *bus.Buffer {
	if p.events == nil {
		return nil
	}
	return p.events.Buffer()
}

func (p publisher) record(buf *bus.Buffer, evt *eventing.Event) {
	if buf != nil {
		buf.Add(evt)
	}
}

func (p publisher) flush(ctx context.Context, buf *bus.Buffer) {
	if buf == nil {
		return
	}
	if err := buf.Flush(ctx); err != nil {
		p.logger.Warn(ctx, "publish workflow events failed", logging.Error(err))
	}
}

func stageChangedEvent(proc *process.Process, old process.Stage, user string) *eventing.Event {
	return eventing.NewEvent(proc.ID, aggregateProcess, EventStageChanged, proc.Version, map[string]any{
		"process_id": proc.ID,
		"from":       string(old),
		"to":         string(proc.Stage),
		"user":       user,
	})
}

func childrenRemovedEvent(proc *process.Process, removed map[process.Category]int, user string) *eventing.Event {
	counts := make(map[string]any, len(removed))
	for cat, n := range removed {
		counts[string(cat)] = n
	}
	return eventing.NewEvent(proc.ID, aggregateProcess, EventChildrenRemoved, proc.Version, map[string]any{
		"process_id": proc.ID,
		"removed":    counts,
		"user":       user,
	})
}

func issueReportedEvent(proc *process.Process, category process.ActiveCategory, user string) *eventing.Event {
	return eventing.NewEvent(proc.ID, aggregateProcess, EventIssueReported, proc.Version, map[string]any{
		"process_id":      proc.ID,
		"active_category": string(category),
		"user":            user,
	})
}

func issueResolvedEvent(proc *process.Process, resume process.Stage, user string) *eventing.Event {
	return eventing.NewEvent(proc.ID, aggregateProcess, EventIssueResolved, proc.Version, map[string]any{
		"process_id": proc.ID,
		"resume":     string(resume),
		"user":       user,
	})
}

func processCreatedEvent(proc *process.Process, user string) *eventing.Event {
	return eventing.NewEvent(proc.ID, aggregateProcess, EventProcessCreated, proc.Version, map[string]any{
		"process_id": proc.ID,
		"type":       string(proc.Type),
		"user":       user,
	})
}

func childCreatedEvent(child *process.Child, user string) *eventing.Event {
	return eventing.NewEvent(child.ProcessID, aggregateProcess, EventChildCreated, child.Version, map[string]any{
		"process_id": child.ProcessID,
		"child_id":   child.ID,
		"category":   string(child.Category),
		"code":       child.Code,
		"user":       user,
	})
}

func childStatusChangedEvent(child *process.Child, old process.ChildStatus, user string) *eventing.Event {
	return eventing.NewEvent(child.ProcessID, aggregateProcess, EventChildStatusChanged, child.Version, map[string]any{
		"process_id": child.ProcessID,
		"child_id":   child.ID,
		"category":   string(child.Category),
		"from":       string(old),
		"to":         string(child.Status),
		"user":       user,
	})
}
