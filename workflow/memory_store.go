package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"fulflow/domain"
	"fulflow/errors"
	"fulflow/process"
)

// MemoryStore 基于内存的 Store 实现（测试与示例用）。
// WithinTx 持锁执行并在失败时整体恢复快照，保证与 SQL 实现一致的原子语义。
type MemoryStore struct {
	mu       sync.RWMutex
	procs    map[string]*process.Process
	children map[string]*process.Child
	items    map[string]*process.LineItem
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		procs:    make(map[string]*process.Process),
		children: make(map[string]*process.Child),
		items:    make(map[string]*process.LineItem),
	}
}

// memoryTx 事务视图：共享底层 map，调用无锁内部方法（外层已持锁）
type memoryTx struct {
	s *MemoryStore
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 快照：失败时整体恢复，模拟事务回滚
	snapProcs := make(map[string]*process.Process, len(s.procs))
	for k, v := range s.procs {
		snapProcs[k] = v.Clone()
	}
	snapChildren := make(map[string]*process.Child, len(s.children))
	for k, v := range s.children {
		snapChildren[k] = v.Clone()
	}
	snapItems := make(map[string]*process.LineItem, len(s.items))
	for k, v := range s.items {
		cp := *v
		snapItems[k] = &cp
	}

	if err := fn(ctx, &memoryTx{s: s}); err != nil {
		s.procs = snapProcs
		s.children = snapChildren
		s.items = snapItems
		return err
	}
	return nil
}

func (s *MemoryStore) GetProcess(ctx context.Context, id string) (*process.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProcessLocked(id)
}

func (s *MemoryStore) getProcessLocked(id string) (*process.Process, error) {
	p, ok := s.procs[id]
	if !ok {
		return nil, domain.NewNotFoundError("流程不存在: %s", id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) CreateProcess(ctx context.Context, p *process.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProcessLocked(p)
}

func (s *MemoryStore) createProcessLocked(p *process.Process) error {
	if _, exists := s.procs[p.ID]; exists {
		return errors.NewError(errors.ErrCodeDuplicate, "流程已存在: "+p.ID)
	}
	s.procs[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) SaveProcess(ctx context.Context, p *process.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveProcessLocked(p)
}

func (s *MemoryStore) saveProcessLocked(p *process.Process) error {
	stored, ok := s.procs[p.ID]
	if !ok {
		return domain.NewNotFoundError("流程不存在: %s", p.ID)
	}
	// 乐观锁：入参版本必须领先于存储版本
	if p.Version <= stored.Version {
		return domain.NewVersionConflictError(p.ID, p.Version, stored.Version)
	}
	s.procs[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) CreateChild(ctx context.Context, c *process.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createChildLocked(c)
}

func (s *MemoryStore) createChildLocked(c *process.Child) error {
	if _, exists := s.children[c.ID]; exists {
		return errors.NewError(errors.ErrCodeDuplicate, "子单已存在: "+c.ID)
	}
	s.children[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) GetChild(ctx context.Context, id string) (*process.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getChildLocked(id)
}

func (s *MemoryStore) getChildLocked(id string) (*process.Child, error) {
	c, ok := s.children[id]
	if !ok {
		return nil, domain.NewNotFoundError("子单不存在: %s", id)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListChildren(ctx context.Context, processID string, filter ChildFilter) ([]*process.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listChildrenLocked(processID, filter)
}

func (s *MemoryStore) listChildrenLocked(processID string, filter ChildFilter) ([]*process.Child, error) {
	var out []*process.Child
	for _, c := range s.children {
		if c.ProcessID != processID || c.Category != filter.Category {
			continue
		}
		if c.IsDeleted() && !filter.IncludeDeleted {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) SaveChild(ctx context.Context, c *process.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveChildLocked(c)
}

func (s *MemoryStore) saveChildLocked(c *process.Child) error {
	if _, ok := s.children[c.ID]; !ok {
		return domain.NewNotFoundError("子单不存在: %s", c.ID)
	}
	s.children[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) BulkSetChildStatus(ctx context.Context, processID string, category process.Category,
	to process.ChildStatus, only, excluding []process.ChildStatus, user string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkSetChildStatusLocked(processID, category, to, only, excluding, user)
}

func (s *MemoryStore) bulkSetChildStatusLocked(processID string, category process.Category,
	to process.ChildStatus, only, excluding []process.ChildStatus, user string) (int, error) {
	updated := 0
	for _, c := range s.children {
		if c.ProcessID != processID || c.Category != category || c.IsDeleted() {
			continue
		}
		if len(only) > 0 && !containsStatus(only, c.Status) {
			continue
		}
		if containsStatus(excluding, c.Status) {
			continue
		}
		if c.Status == to {
			continue
		}
		c.Status = to
		c.SetUpdatedInfo(user, time.Now())
		updated++
	}
	return updated, nil
}

func (s *MemoryStore) SoftDeleteChildren(ctx context.Context, processID string,
	categories []process.Category, user string) (map[process.Category]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteChildrenLocked(processID, categories, user)
}

func (s *MemoryStore) softDeleteChildrenLocked(processID string,
	categories []process.Category, user string) (map[process.Category]int, error) {
	counts := make(map[process.Category]int)
	now := time.Now()
	for _, c := range s.children {
		if c.ProcessID != processID || c.IsDeleted() {
			continue
		}
		for _, cat := range categories {
			if c.Category == cat {
				if err := c.SoftDelete(user, now); err != nil {
					return nil, err
				}
				counts[cat]++
				break
			}
		}
	}
	return counts, nil
}

func (s *MemoryStore) InsertLineItems(ctx context.Context, items []*process.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLineItemsLocked(items)
}

func (s *MemoryStore) insertLineItemsLocked(items []*process.LineItem) error {
	for _, item := range items {
		cp := *item
		s.items[item.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) ListLineItems(ctx context.Context, parentID string) ([]*process.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLineItemsLocked(parentID)
}

func (s *MemoryStore) listLineItemsLocked(parentID string) ([]*process.LineItem, error) {
	var out []*process.LineItem
	for _, item := range s.items {
		if item.ParentID == parentID {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemCode < out[j].ItemCode })
	return out, nil
}

// 事务视图：转发到无锁内部方法

func (t *memoryTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return errors.NewError(errors.ErrCodeInternal, "不支持嵌套事务")
}

func (t *memoryTx) GetProcess(ctx context.Context, id string) (*process.Process, error) {
	return t.s.getProcessLocked(id)
}

func (t *memoryTx) CreateProcess(ctx context.Context, p *process.Process) error {
	return t.s.createProcessLocked(p)
}

func (t *memoryTx) SaveProcess(ctx context.Context, p *process.Process) error {
	return t.s.saveProcessLocked(p)
}

func (t *memoryTx) CreateChild(ctx context.Context, c *process.Child) error {
	return t.s.createChildLocked(c)
}

func (t *memoryTx) GetChild(ctx context.Context, id string) (*process.Child, error) {
	return t.s.getChildLocked(id)
}

func (t *memoryTx) ListChildren(ctx context.Context, processID string, filter ChildFilter) ([]*process.Child, error) {
	return t.s.listChildrenLocked(processID, filter)
}

func (t *memoryTx) SaveChild(ctx context.Context, c *process.Child) error {
	return t.s.saveChildLocked(c)
}

func (t *memoryTx) BulkSetChildStatus(ctx context.Context, processID string, category process.Category,
	to process.ChildStatus, only, excluding []process.ChildStatus, user string) (int, error) {
	return t.s.bulkSetChildStatusLocked(processID, category, to, only, excluding, user)
}

func (t *memoryTx) SoftDeleteChildren(ctx context.Context, processID string,
	categories []process.Category, user string) (map[process.Category]int, error) {
	return t.s.softDeleteChildrenLocked(processID, categories, user)
}

func (t *memoryTx) InsertLineItems(ctx context.Context, items []*process.LineItem) error {
	return t.s.insertLineItemsLocked(items)
}

func (t *memoryTx) ListLineItems(ctx context.Context, parentID string) ([]*process.LineItem, error) {
	return t.s.listLineItemsLocked(parentID)
}

func containsStatus(list []process.ChildStatus, s process.ChildStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
