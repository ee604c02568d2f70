package router

import (
	"time"

	commonMiddleware "neuroassess/common/middleware"
	"neuroassess/internal/config"
	"neuroassess/internal/engine"
	"neuroassess/internal/handler"
	"neuroassess/internal/middleware"
	"neuroassess/internal/svc"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

// NewApp 创建 Fiber 应用，JSON 编解码使用 sonic
func NewApp(cfg *config.Config) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
	})
}

// Setup 设置路由
func Setup(app *fiber.App, sc *svc.ServiceContext) {
	cfg := sc.Config
	authed := middleware.AuthMiddleware(sc.Accounts, cfg.Security.RolePrefix)
	serviceOnly := middleware.RequireRole(cfg.Engine.ServiceRole)

	taskHandler := handler.NewTaskHandler(sc)
	authHandler := handler.NewAuthHandler(sc)
	opsHandler := handler.NewOpsHandler(sc)

	// 全局中间件
	app.Use(commonMiddleware.CORS(), commonMiddleware.RequestID(), commonMiddleware.Logger(), commonMiddleware.Recover())

	// ========== 公开路由 ==========
	app.Get("/health", opsHandler.Health)

	pub := app.Group("/api/auth")
	pub.Post("/login", authHandler.Login)
	pub.Post("/logout", authHandler.Logout)
	pub.Get("/me", authed, authHandler.Me)

	// ========== 评估任务 ==========
	a := app.Group("/assessment", authed)
	a.Get("/tasks", taskHandler.List)
	a.Get("/:processInstanceId/tasks", taskHandler.ListByInstance)

	complete := []fiber.Handler{taskHandler.Complete}
	if sc.Audit != nil {
		complete = append([]fiber.Handler{middleware.CompletionAuditMiddleware(sc.Audit, cfg.Tasks.ProcessID)}, complete...)
	}
	a.Post("/:processInstanceId/tasks/:taskId", complete...)

	// ========== 运维（服务账号） ==========
	app.Get("/ops/metrics", authed, serviceOnly, opsHandler.Metrics)

	// ========== 引擎 REST（服务账号） ==========
	if cfg.Engine.Enabled {
		engine.RegisterRoutes(app.Group(cfg.Engine.BasePath, authed, serviceOnly), sc.Engine)
	}
}
