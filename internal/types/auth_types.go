package types

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string   `json:"token"`
	UserName  string   `json:"userName"`
	UserRoles []string `json:"userRoles"`
}

// PrincipalResponse 当前主体
type PrincipalResponse struct {
	UserName  string   `json:"userName"`
	UserRoles []string `json:"userRoles"`
}
