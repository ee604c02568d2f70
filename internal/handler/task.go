package handler

import (
	"errors"
	"strings"

	"neuroassess/common/logger"
	"neuroassess/common/response"
	"neuroassess/internal/auth"
	"neuroassess/internal/logic"
	"neuroassess/internal/svc"
	"neuroassess/internal/tasks"
	"neuroassess/internal/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

// 任务接口响应消息
const (
	MsgTaskCompleted      = "Task completed successfully"
	MsgProcessUnavailable = "Assessment process not initialized"
	MsgInstanceNotFound   = "Process instance not found"
	MsgTaskNotFound       = "Task not found"
	MsgNotAuthorized      = "Not authorized to complete this task"
	MsgInProgress         = "Task completion already in progress"
	MsgAlreadyCompleted   = "Task already completed"
	MsgCompleteFailed     = "Error completing task"
	MsgListFailed         = "Error retrieving tasks"
	MsgInvalidPayload     = "Invalid DN4 payload"
)

// TaskHandler 评估任务处理器
type TaskHandler struct {
	sc *svc.ServiceContext
}

// NewTaskHandler 创建评估任务处理器
func NewTaskHandler(sc *svc.ServiceContext) *TaskHandler {
	return &TaskHandler{sc: sc}
}

// List 当前用户在全部活动实例中的任务
func (h *TaskHandler) List(c *fiber.Ctx) error {
	return h.list(c, "")
}

// ListByInstance 当前用户在指定实例中的任务
func (h *TaskHandler) ListByInstance(c *fiber.Ctx) error {
	return h.list(c, utils.CopyString(c.Params("processInstanceId")))
}

func (h *TaskHandler) list(c *fiber.Ctx, instanceID string) error {
	p := auth.CurrentPrincipal(c)

	result, err := logic.NewTaskLogic(c, h.sc).ListTasks(p, instanceID)
	if err == nil {
		return response.OK(c, result)
	}

	// 列表接口的业务错误以 200 + error 字段返回
	empty := response.Body{
		"tasks":      []types.TaskRecord{},
		"userName":   p.Name,
		"userRoles":  p.Roles,
		"totalTasks": 0,
	}
	if instanceID != "" {
		empty["processInstanceId"] = instanceID
	}
	switch {
	case errors.Is(err, tasks.ErrProcessUnavailable):
		return response.Fail(c, fiber.StatusOK, MsgProcessUnavailable, empty)
	case errors.Is(err, tasks.ErrInstanceNotFound):
		return response.Fail(c, fiber.StatusOK, MsgInstanceNotFound, empty)
	default:
		logger.Error("list tasks", zap.String("user", p.Name), zap.String("processInstanceId", instanceID), zap.Error(err))
		return response.ServerError(c, MsgListFailed, nil)
	}
}

// Complete 提交 DN4 问卷完成任务
func (h *TaskHandler) Complete(c *fiber.Ctx) error {
	p := auth.CurrentPrincipal(c)
	instanceID := utils.CopyString(c.Params("processInstanceId"))
	taskID := utils.CopyString(c.Params("taskId"))

	if len(c.Body()) == 0 {
		return response.BadRequest(c, MsgInvalidPayload, response.Body{"taskId": taskID, "processInstanceId": instanceID})
	}
	var dn4 types.DN4
	if err := c.BodyParser(&dn4); err != nil {
		return response.BadRequest(c, MsgInvalidPayload, response.Body{"taskId": taskID, "processInstanceId": instanceID})
	}

	logger.Info("completing task",
		zap.String("taskId", taskID),
		zap.String("processInstanceId", instanceID),
		zap.String("user", p.Name),
	)

	result, err := logic.NewTaskLogic(c, h.sc).CompleteTask(p, instanceID, taskID, &dn4)
	if err != nil {
		return h.completeError(c, err, p, instanceID, taskID)
	}
	return response.OK(c, result)
}

func (h *TaskHandler) completeError(c *fiber.Ctx, err error, p auth.Principal, instanceID, taskID string) error {
	ids := response.Body{"taskId": taskID, "processInstanceId": instanceID}
	switch {
	case errors.Is(err, tasks.ErrInstanceNotFound):
		return response.NotFound(c, MsgInstanceNotFound, response.Body{"processInstanceId": instanceID})
	case errors.Is(err, tasks.ErrTaskNotFound):
		return response.NotFound(c, MsgTaskNotFound, ids)
	case errors.Is(err, tasks.ErrNotAuthorized):
		return response.Forbidden(c, MsgNotAuthorized, response.Body{"taskId": taskID, "userName": p.Name})
	case errors.Is(err, tasks.ErrCompletionInProgress):
		return response.Conflict(c, MsgInProgress, ids)
	case errors.Is(err, tasks.ErrAlreadyCompleted):
		return response.Conflict(c, MsgAlreadyCompleted, ids)
	case errors.Is(err, tasks.ErrProcessUnavailable):
		return response.ServerError(c, MsgProcessUnavailable, ids)
	}

	logger.Error("complete task",
		zap.String("taskId", taskID),
		zap.String("processInstanceId", instanceID),
		zap.String("user", p.Name),
		zap.Error(err),
	)
	msg := MsgCompleteFailed
	if h.sc.Config.Tasks.ExposeEngineErrors {
		msg += ": " + strings.TrimPrefix(err.Error(), tasks.ErrSubmitFailed.Error()+": ")
	}
	return response.ServerError(c, msg, ids)
}
