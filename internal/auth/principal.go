package auth

import (
	"strings"

	"neuroassess/common/utils"

	"github.com/gofiber/fiber/v2"
)

// AnonymousName 未认证主体名称
const AnonymousName = "anonymous"

const principalKey = "principal"

// Principal 当前调用者：名称 + 角色集合，请求期间不可变
type Principal struct {
	Name  string   `json:"userName"`
	Roles []string `json:"userRoles"`
}

// Anonymous 未认证主体
func Anonymous() Principal {
	return Principal{Name: AnonymousName, Roles: []string{}}
}

// NewPrincipal 由账号名和权限构建主体，权限去除 prefix 前缀后去重
func NewPrincipal(name string, authorities []string, prefix string) Principal {
	roles := make([]string, 0, len(authorities))
	for _, a := range authorities {
		if prefix != "" {
			a = strings.TrimPrefix(a, prefix)
		}
		if a != "" {
			roles = append(roles, a)
		}
	}
	return Principal{Name: name, Roles: utils.SliceUnique(roles)}
}

// IsAnonymous 是否未认证
func (p Principal) IsAnonymous() bool {
	return p.Name == "" || p.Name == AnonymousName
}

// HasRole 是否拥有角色（精确匹配）
func (p Principal) HasRole(role string) bool {
	return utils.SliceContains(p.Roles, role)
}

// SetPrincipal 将主体写入请求上下文
func SetPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(principalKey, p)
}

// CurrentPrincipal 获取当前主体，无认证会话时返回 anonymous，不会失败
func CurrentPrincipal(c *fiber.Ctx) Principal {
	if p, ok := c.Locals(principalKey).(Principal); ok && p.Name != "" {
		roles := make([]string, len(p.Roles))
		copy(roles, p.Roles)
		return Principal{Name: p.Name, Roles: roles}
	}
	return Anonymous()
}
