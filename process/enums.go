// Package process 定义履约流程的领域模型：流程主档、子单据、行项目，
// 以及阶段/类别/状态等封闭枚举。枚举全部使用类型化字符串常量，
// 分派一律走穷举 switch，不做字符串散表。
package process

// ProcessType 流程类型，决定使用哪张阶段流转图
type ProcessType string

const (
	TypeManufacturing ProcessType = "manufacturing-flow" // 纯生产流程
	TypeProcurement   ProcessType = "procurement-flow"   // 纯采购流程
	TypeHybrid        ProcessType = "hybrid-flow"        // 采购+生产混合流程
)

// Valid 判断是否为合法流程类型
func (t ProcessType) Valid() bool {
	switch t {
	case TypeManufacturing, TypeProcurement, TypeHybrid:
		return true
	}
	return false
}

// AllowsCategory 判断该流程类型是否允许创建指定类别的子单
func (t ProcessType) AllowsCategory(c Category) bool {
	switch c {
	case CategoryOrder, CategoryShipment:
		return true
	case CategoryManufacturing:
		return t == TypeManufacturing || t == TypeHybrid
	case CategoryProcurement:
		return t == TypeProcurement || t == TypeHybrid
	}
	return false
}

// Stage 流程阶段（封闭枚举）
type Stage string

const (
	StageDraft                  Stage = "draft"
	StageOrderConfirmed         Stage = "order-confirmed"
	StageInProcurement          Stage = "in-procurement"
	StageProcurementCompleted   Stage = "procurement-completed"
	StageInManufacturing        Stage = "in-manufacturing"
	StageManufacturingCompleted Stage = "manufacturing-completed"
	StageInProcAndMfg           Stage = "in-procurement-and-manufacturing"
	StageProcAndMfgCompleted    Stage = "procurement-and-manufacturing-completed"
	StageInShipment             Stage = "in-shipment"
	StageShipmentCompleted      Stage = "shipment-completed"
	StageCompleted              Stage = "completed"
	StageCancelled              Stage = "cancelled"
	StageIssueReported          Stage = "issue-reported"
)

// Stages 返回全部阶段（定义顺序）
func Stages() []Stage {
	return []Stage{
		StageDraft, StageOrderConfirmed,
		StageInProcurement, StageProcurementCompleted,
		StageInManufacturing, StageManufacturingCompleted,
		StageInProcAndMfg, StageProcAndMfgCompleted,
		StageInShipment, StageShipmentCompleted,
		StageCompleted, StageCancelled, StageIssueReported,
	}
}

// Valid 判断是否为合法阶段
func (s Stage) Valid() bool {
	for _, v := range Stages() {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal 终态阶段（流转图中映射为空集）
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// Category 子单据类别（封闭枚举）
type Category string

const (
	CategoryOrder         Category = "order"
	CategoryManufacturing Category = "manufacturing"
	CategoryProcurement   Category = "procurement"
	CategoryShipment      Category = "shipment"
)

// Categories 返回全部子单类别
func Categories() []Category {
	return []Category{CategoryOrder, CategoryManufacturing, CategoryProcurement, CategoryShipment}
}

// Valid 判断是否为合法类别
func (c Category) Valid() bool {
	switch c {
	case CategoryOrder, CategoryManufacturing, CategoryProcurement, CategoryShipment:
		return true
	}
	return false
}

// CodePrefix 单据编号前缀
func (c Category) CodePrefix() string {
	switch c {
	case CategoryOrder:
		return "SO"
	case CategoryManufacturing:
		return "MO"
	case CategoryProcurement:
		return "PO"
	case CategoryShipment:
		return "SH"
	}
	return "XX"
}

// ActiveCategory 当前瓶颈类别标记
type ActiveCategory string

const (
	ActiveNone          ActiveCategory = "none"
	ActiveSalesOrder    ActiveCategory = "sales-order"
	ActiveManufacturing ActiveCategory = "manufacturing"
	ActiveProcurement   ActiveCategory = "procurement"
	ActiveMfgAndProc    ActiveCategory = "manufacturing-and-procurement"
	ActiveShipment      ActiveCategory = "shipment"
)

// Categories 展开瓶颈标记对应的子单类别（用于异常传播）
func (a ActiveCategory) Categories() []Category {
	switch a {
	case ActiveSalesOrder:
		return []Category{CategoryOrder}
	case ActiveManufacturing:
		return []Category{CategoryManufacturing}
	case ActiveProcurement:
		return []Category{CategoryProcurement}
	case ActiveMfgAndProc:
		return []Category{CategoryManufacturing, CategoryProcurement}
	case ActiveShipment:
		return []Category{CategoryShipment}
	}
	return nil
}

// ChildStatus 子单据状态
type ChildStatus string

const (
	ChildDraft         ChildStatus = "draft"
	ChildActive        ChildStatus = "active"
	ChildCompleted     ChildStatus = "completed"
	ChildCancelled     ChildStatus = "cancelled"
	ChildIssueReported ChildStatus = "issue-reported"
)

// SyncTerminal 正向同步不会覆盖的状态
func (s ChildStatus) SyncTerminal() bool {
	return s == ChildCancelled || s == ChildIssueReported
}

// Valid 判断是否为合法子单状态
func (s ChildStatus) Valid() bool {
	switch s {
	case ChildDraft, ChildActive, ChildCompleted, ChildCancelled, ChildIssueReported:
		return true
	}
	return false
}
