package logic

import (
	"context"
	"errors"

	"neuroassess/internal/auth"
	"neuroassess/internal/svc"
	"neuroassess/internal/types"

	"github.com/gofiber/fiber/v2"
)

// ErrEmptyCredentials 用户名或密码为空
var ErrEmptyCredentials = errors.New("username and password are required")

// AuthLogic 认证逻辑
type AuthLogic struct {
	ctx context.Context
	sc  *svc.ServiceContext
}

// NewAuthLogic 创建认证逻辑
func NewAuthLogic(c *fiber.Ctx, sc *svc.ServiceContext) *AuthLogic {
	return &AuthLogic{ctx: c.UserContext(), sc: sc}
}

// Login 校验账号并签发 sa-token 会话
func (l *AuthLogic) Login(req *types.LoginRequest) (*types.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, ErrEmptyCredentials
	}

	account, err := l.sc.Accounts.Authenticate(l.ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	token, err := auth.Login(account.Username)
	if err != nil {
		return nil, err
	}

	p := auth.NewPrincipal(account.Username, account.Authorities, l.sc.Config.Security.RolePrefix)
	return &types.LoginResponse{
		Token:     token,
		UserName:  p.Name,
		UserRoles: p.Roles,
	}, nil
}

// Logout 注销会话
func (l *AuthLogic) Logout(token string) error {
	if token == "" {
		return nil
	}
	return auth.LogoutByToken(token)
}
