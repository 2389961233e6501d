// Package workflow 实现履约流程的编排核心：按流程类型的阶段流转图、
// 流转校验器、事务性的状态服务、父子状态双向同步与子单工厂。
// 全部配置表为包级不可变值，进程启动即定型，无可变全局状态。
package workflow

import (
	"fulflow/errors"
	"fulflow/process"
)

// Graph 阶段流转图：当前阶段 → 允许的目标阶段集合。
// 对枚举全集闭合：终态阶段与该类型不使用的阶段映射为空集。
type Graph map[process.Stage][]process.Stage

// Allowed 判断 from → to 是否在图中允许
func (g Graph) Allowed(from, to process.Stage) bool {
	for _, s := range g[from] {
		if s == to {
			return true
		}
	}
	return false
}

// 阶段优先级：数值越大越靠后；回退 = 流转到更低优先级的阶段。
// issue-reported 介于发运完成与完成之间，进出异常态不按回退处理。
var stagePriority = map[process.Stage]int{
	process.StageDraft:                  0,
	process.StageOrderConfirmed:         10,
	process.StageInProcurement:          20,
	process.StageInManufacturing:        20,
	process.StageInProcAndMfg:           20,
	process.StageProcurementCompleted:   30,
	process.StageManufacturingCompleted: 30,
	process.StageProcAndMfgCompleted:    30,
	process.StageInShipment:             40,
	process.StageShipmentCompleted:      50,
	process.StageIssueReported:          55,
	process.StageCompleted:              60,
	process.StageCancelled:              70,
}

// 回退清理阈值：目标阶段优先级低于阈值时，对应类别的子单失效
const (
	priorityBeforeManufacturing = 20 // 低于此值：生产/采购子单失效
	priorityBeforeShipment      = 40 // 低于此值：发运子单失效
)

// Priority 返回阶段优先级（未知阶段为 -1，调用方应先验证枚举）
func Priority(s process.Stage) int {
	if p, ok := stagePriority[s]; ok {
		return p
	}
	return -1
}

// 三张流转图共用的收敛规则：全部汇入 completed/cancelled；
// 任意进行中阶段可进入 issue-reported，并从其退回到有限的恢复集合。

var manufacturingGraph = Graph{
	process.StageDraft:          {process.StageOrderConfirmed, process.StageCancelled},
	process.StageOrderConfirmed: {process.StageInManufacturing, process.StageDraft, process.StageCancelled, process.StageIssueReported},
	process.StageInManufacturing: {
		process.StageManufacturingCompleted, process.StageOrderConfirmed, process.StageDraft,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageManufacturingCompleted: {
		process.StageInShipment, process.StageInManufacturing,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageInShipment: {
		process.StageShipmentCompleted, process.StageManufacturingCompleted,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageShipmentCompleted: {process.StageCompleted, process.StageInShipment, process.StageCancelled, process.StageIssueReported},
	process.StageIssueReported: {
		process.StageDraft, process.StageInManufacturing,
		process.StageInShipment, process.StageCancelled,
	},
	process.StageCompleted: {},
	process.StageCancelled: {},
	// 本类型不使用的阶段：保留空条目以保证图对枚举闭合
	process.StageInProcurement:        {},
	process.StageProcurementCompleted: {},
	process.StageInProcAndMfg:         {},
	process.StageProcAndMfgCompleted:  {},
}

var procurementGraph = Graph{
	process.StageDraft:          {process.StageOrderConfirmed, process.StageCancelled},
	process.StageOrderConfirmed: {process.StageInProcurement, process.StageDraft, process.StageCancelled, process.StageIssueReported},
	process.StageInProcurement: {
		process.StageProcurementCompleted, process.StageOrderConfirmed, process.StageDraft,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageProcurementCompleted: {
		process.StageInShipment, process.StageInProcurement,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageInShipment: {
		process.StageShipmentCompleted, process.StageProcurementCompleted,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageShipmentCompleted: {process.StageCompleted, process.StageInShipment, process.StageCancelled, process.StageIssueReported},
	process.StageIssueReported: {
		process.StageDraft, process.StageInProcurement,
		process.StageInShipment, process.StageCancelled,
	},
	process.StageCompleted:              {},
	process.StageCancelled:              {},
	process.StageInManufacturing:        {},
	process.StageManufacturingCompleted: {},
	process.StageInProcAndMfg:           {},
	process.StageProcAndMfgCompleted:    {},
}

var hybridGraph = Graph{
	process.StageDraft: {process.StageOrderConfirmed, process.StageCancelled},
	process.StageOrderConfirmed: {
		process.StageInManufacturing, process.StageInProcurement, process.StageInProcAndMfg,
		process.StageDraft, process.StageCancelled, process.StageIssueReported,
	},
	process.StageInManufacturing: {
		process.StageInProcAndMfg, process.StageManufacturingCompleted,
		process.StageOrderConfirmed, process.StageDraft,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageInProcurement: {
		process.StageInProcAndMfg, process.StageProcurementCompleted,
		process.StageOrderConfirmed, process.StageDraft,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageInProcAndMfg: {
		process.StageProcAndMfgCompleted, process.StageOrderConfirmed, process.StageDraft,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageManufacturingCompleted: {
		process.StageInShipment, process.StageInManufacturing, process.StageInProcAndMfg,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageProcurementCompleted: {
		process.StageInShipment, process.StageInProcurement, process.StageInProcAndMfg,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageProcAndMfgCompleted: {
		process.StageInShipment, process.StageInProcAndMfg,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageInShipment: {
		process.StageShipmentCompleted,
		process.StageManufacturingCompleted, process.StageProcurementCompleted, process.StageProcAndMfgCompleted,
		process.StageCancelled, process.StageIssueReported,
	},
	process.StageShipmentCompleted: {process.StageCompleted, process.StageInShipment, process.StageCancelled, process.StageIssueReported},
	process.StageIssueReported: {
		process.StageDraft,
		process.StageInManufacturing, process.StageInProcurement, process.StageInProcAndMfg,
		process.StageInShipment, process.StageCancelled,
	},
	process.StageCompleted: {},
	process.StageCancelled: {},
}

// GraphFor 返回流程类型对应的流转图；未知类型为致命配置错误
func GraphFor(t process.ProcessType) (Graph, error) {
	switch t {
	case process.TypeManufacturing:
		return manufacturingGraph, nil
	case process.TypeProcurement:
		return procurementGraph, nil
	case process.TypeHybrid:
		return hybridGraph, nil
	}
	return nil, errors.NewError(errors.ErrCodeInternal, "未知流程类型: "+string(t))
}

// 角色 → 允许流转到的阶段集合；admin 使用通配（仅绕过权限检查，不绕过结构校验）
var rolePermissions = map[process.RoleID]map[process.Stage]struct{}{
	process.RoleSales: stageSet(
		process.StageDraft, process.StageOrderConfirmed,
		process.StageCancelled, process.StageIssueReported,
	),
	process.RoleManufacturing: stageSet(
		process.StageInManufacturing, process.StageManufacturingCompleted,
		process.StageInProcAndMfg, process.StageProcAndMfgCompleted,
		process.StageIssueReported,
	),
	process.RoleProcurement: stageSet(
		process.StageInProcurement, process.StageProcurementCompleted,
		process.StageInProcAndMfg, process.StageProcAndMfgCompleted,
		process.StageIssueReported,
	),
	process.RoleLogistics: stageSet(
		process.StageInShipment, process.StageShipmentCompleted,
		process.StageCompleted, process.StageIssueReported,
	),
}

func stageSet(stages ...process.Stage) map[process.Stage]struct{} {
	set := make(map[process.Stage]struct{}, len(stages))
	for _, s := range stages {
		set[s] = struct{}{}
	}
	return set
}

// RolePermissions 返回角色允许的目标阶段集合；wildcard 为真表示不设限。
// 角色只收紧流转图，绝不放宽。
func RolePermissions(r process.RoleID) (map[process.Stage]struct{}, bool) {
	if r == process.RoleAdmin {
		return nil, true
	}
	return rolePermissions[r], false
}

// ActiveCategoryFor 计算 (类型, 阶段) 对应的瓶颈类别。
// issue-reported 不经此函数：异常态沿用中断前的标记，由调用方跳过重算。
func ActiveCategoryFor(t process.ProcessType, s process.Stage) process.ActiveCategory {
	switch s {
	case process.StageDraft, process.StageOrderConfirmed:
		return process.ActiveSalesOrder
	case process.StageInManufacturing, process.StageManufacturingCompleted:
		return process.ActiveManufacturing
	case process.StageInProcurement, process.StageProcurementCompleted:
		return process.ActiveProcurement
	case process.StageInProcAndMfg, process.StageProcAndMfgCompleted:
		return process.ActiveMfgAndProc
	case process.StageInShipment, process.StageShipmentCompleted:
		return process.ActiveShipment
	case process.StageCompleted, process.StageCancelled:
		return process.ActiveNone
	}
	return process.ActiveNone
}

// forwardSyncTargets 正向同步表：进入某阶段时各类别子单应到达的状态。
// cancelled 级联取消全部类别；issue-reported 不在表中（走异常传播）。
func forwardSyncTargets(s process.Stage) map[process.Category]process.ChildStatus {
	switch s {
	case process.StageDraft:
		return map[process.Category]process.ChildStatus{process.CategoryOrder: process.ChildDraft}
	case process.StageOrderConfirmed:
		return map[process.Category]process.ChildStatus{process.CategoryOrder: process.ChildActive}
	case process.StageInManufacturing:
		return map[process.Category]process.ChildStatus{process.CategoryManufacturing: process.ChildActive}
	case process.StageManufacturingCompleted:
		return map[process.Category]process.ChildStatus{process.CategoryManufacturing: process.ChildCompleted}
	case process.StageInProcurement:
		return map[process.Category]process.ChildStatus{process.CategoryProcurement: process.ChildActive}
	case process.StageProcurementCompleted:
		return map[process.Category]process.ChildStatus{process.CategoryProcurement: process.ChildCompleted}
	case process.StageInProcAndMfg:
		return map[process.Category]process.ChildStatus{
			process.CategoryManufacturing: process.ChildActive,
			process.CategoryProcurement:   process.ChildActive,
		}
	case process.StageProcAndMfgCompleted:
		return map[process.Category]process.ChildStatus{
			process.CategoryManufacturing: process.ChildCompleted,
			process.CategoryProcurement:   process.ChildCompleted,
		}
	case process.StageInShipment:
		return map[process.Category]process.ChildStatus{process.CategoryShipment: process.ChildActive}
	case process.StageShipmentCompleted:
		return map[process.Category]process.ChildStatus{process.CategoryShipment: process.ChildCompleted}
	case process.StageCompleted:
		return map[process.Category]process.ChildStatus{
			process.CategoryOrder:    process.ChildCompleted,
			process.CategoryShipment: process.ChildCompleted,
		}
	case process.StageCancelled:
		return map[process.Category]process.ChildStatus{
			process.CategoryOrder:         process.ChildCancelled,
			process.CategoryManufacturing: process.ChildCancelled,
			process.CategoryProcurement:   process.ChildCancelled,
			process.CategoryShipment:      process.ChildCancelled,
		}
	}
	return nil
}

// invalidatedCategories 回退到 target 时失效的子单类别（按类型裁剪）
func invalidatedCategories(t process.ProcessType, target process.Stage) []process.Category {
	p := Priority(target)
	var cats []process.Category
	if p < priorityBeforeManufacturing {
		if t.AllowsCategory(process.CategoryManufacturing) {
			cats = append(cats, process.CategoryManufacturing)
		}
		if t.AllowsCategory(process.CategoryProcurement) {
			cats = append(cats, process.CategoryProcurement)
		}
	}
	if p < priorityBeforeShipment {
		cats = append(cats, process.CategoryShipment)
	}
	return cats
}
