package middleware

import (
	"encoding/base64"
	"strings"

	"neuroassess/common/response"
	"neuroassess/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware 认证中间件
// 支持 HTTP Basic（账号存储校验）与 sa-token 会话 token，解析出的主体存入上下文
func AuthMiddleware(store auth.AccountStore, rolePrefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if username, password, ok := basicCredentials(c); ok {
			account, err := store.Authenticate(c.UserContext(), username, password)
			if err != nil {
				return response.Unauthorized(c, "invalid credentials")
			}
			auth.SetPrincipal(c, auth.NewPrincipal(account.Username, account.Authorities, rolePrefix))
			return c.Next()
		}

		// 获取Token
		token := getToken(c)
		if token == "" {
			return response.Unauthorized(c, "authentication required")
		}

		// 检查登录状态
		if !auth.IsLogin(token) {
			return response.Unauthorized(c, "session expired")
		}

		loginId, err := auth.GetLoginId(token)
		if err != nil {
			return response.Unauthorized(c, "session invalid")
		}

		// 按账号名重新加载角色，账号被禁用或删除后会话立即失效
		account, err := store.Lookup(c.UserContext(), loginId)
		if err != nil {
			return response.Unauthorized(c, "session invalid")
		}

		auth.SetPrincipal(c, auth.NewPrincipal(account.Username, account.Authorities, rolePrefix))
		c.Locals("token", token)
		return c.Next()
	}
}

// RequireRole 角色验证中间件，需在 AuthMiddleware 之后使用
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := auth.CurrentPrincipal(c)
		if p.IsAnonymous() {
			return response.Unauthorized(c, "authentication required")
		}
		if !p.HasRole(role) {
			return response.Forbidden(c, "", response.Body{"userName": p.Name})
		}
		return c.Next()
	}
}

// basicCredentials 解析 Authorization: Basic 头
func basicCredentials(c *fiber.Ctx) (string, string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) <= 6 || !strings.EqualFold(header[:6], "basic ") {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[6:]))
	if err != nil {
		return "", "", false
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", false
	}
	return username, password, true
}

// getToken 从请求中获取Token
func getToken(c *fiber.Ctx) string {
	// 从Header获取
	token := c.Get("satoken")
	if token != "" {
		return token
	}

	// 从Authorization获取
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	// 从Query获取
	token = c.Query("satoken")
	if token != "" {
		return token
	}

	// 从Cookie获取
	return c.Cookies("satoken")
}

// GetToken 获取当前请求的Token（公开路由使用）
func GetToken(c *fiber.Ctx) string {
	if token, ok := c.Locals("token").(string); ok && token != "" {
		return token
	}
	return getToken(c)
}
