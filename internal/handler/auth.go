package handler

import (
	"errors"

	"neuroassess/common/response"
	"neuroassess/internal/auth"
	"neuroassess/internal/logic"
	"neuroassess/internal/middleware"
	"neuroassess/internal/svc"
	"neuroassess/internal/types"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	sc *svc.ServiceContext
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(sc *svc.ServiceContext) *AuthHandler {
	return &AuthHandler{sc: sc}
}

// Login 登录
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req types.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid login request", nil)
	}

	result, err := logic.NewAuthLogic(c, h.sc).Login(&req)
	switch {
	case err == nil:
		return response.OK(c, result)
	case errors.Is(err, logic.ErrEmptyCredentials):
		return response.BadRequest(c, err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountDisabled):
		return response.Unauthorized(c, err.Error())
	default:
		return response.ServerError(c, "login failed", nil)
	}
}

// Logout 登出
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	// 公开路由，没有token也返回成功
	_ = logic.NewAuthLogic(c, h.sc).Logout(middleware.GetToken(c))
	return c.SendStatus(fiber.StatusNoContent)
}

// Me 当前主体
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	p := auth.CurrentPrincipal(c)
	return response.OK(c, types.PrincipalResponse{UserName: p.Name, UserRoles: p.Roles})
}
