package handler

import (
	"neuroassess/common/response"
	"neuroassess/internal/svc"

	"github.com/gofiber/fiber/v2"
)

// OpsHandler 运维接口
type OpsHandler struct {
	sc *svc.ServiceContext
}

// NewOpsHandler 创建运维处理器
func NewOpsHandler(sc *svc.ServiceContext) *OpsHandler {
	return &OpsHandler{sc: sc}
}

// Health 健康检查
func (h *OpsHandler) Health(c *fiber.Ctx) error {
	_, deployed := h.sc.Engine.Process(h.sc.Config.Tasks.ProcessID)
	return response.OK(c, response.Body{
		"status":          "UP",
		"app":             h.sc.Config.App.Name,
		"processDeployed": deployed,
		"facade":          h.sc.Config.Facade.Enabled,
	})
}

// Metrics 任务网关指标
func (h *OpsHandler) Metrics(c *fiber.Ctx) error {
	return response.OK(c, response.Body{"metrics": h.sc.Metrics.Snapshot()})
}
