package process

import "context"

// RoleID 角色标识（封闭枚举）
type RoleID string

const (
	RoleAdmin         RoleID = "admin" // 拥有全部阶段的流转权限（不绕过结构校验）
	RoleSales         RoleID = "sales"
	RoleManufacturing RoleID = "manufacturing"
	RoleProcurement   RoleID = "procurement"
	RoleLogistics     RoleID = "logistics"
)

// Valid 判断是否为合法角色
func (r RoleID) Valid() bool {
	switch r {
	case RoleAdmin, RoleSales, RoleManufacturing, RoleProcurement, RoleLogistics:
		return true
	}
	return false
}

// IRoleResolver 角色查询接口（外部协作方，如认证系统）
type IRoleResolver interface {
	// RoleOf 返回用户的角色；用户不存在时返回空角色与 nil 错误
	RoleOf(ctx context.Context, user string) (RoleID, error)
}

// StaticRoleResolver 基于静态映射的角色解析器（测试与示例用）
type StaticRoleResolver map[string]RoleID

func (r StaticRoleResolver) RoleOf(_ context.Context, user string) (RoleID, error) {
	return r[user], nil
}
