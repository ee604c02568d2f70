package logic

import (
	"context"

	"neuroassess/internal/auth"
	"neuroassess/internal/svc"
	"neuroassess/internal/tasks"
	"neuroassess/internal/types"

	"github.com/gofiber/fiber/v2"
)

// TaskLogic 任务发现与完成逻辑
type TaskLogic struct {
	ctx context.Context
	sc  *svc.ServiceContext
}

// NewTaskLogic 创建任务逻辑
func NewTaskLogic(c *fiber.Ctx, sc *svc.ServiceContext) *TaskLogic {
	return &TaskLogic{ctx: c.UserContext(), sc: sc}
}

// ListTasks 列出主体可见的活动任务，instanceID 为空时覆盖全部活动实例
func (l *TaskLogic) ListTasks(p auth.Principal, instanceID string) (*types.TaskListResponse, error) {
	scope := tasks.AllInstances()
	if instanceID != "" {
		scope = tasks.Instance(instanceID)
	}

	listing, err := l.sc.Aggregator.ListTasks(l.ctx, p, scope)
	if err != nil {
		return nil, err
	}

	return &types.TaskListResponse{
		Tasks:             listing.Tasks,
		UserName:          p.Name,
		UserRoles:         p.Roles,
		TotalTasks:        len(listing.Tasks),
		ProcessInstanceID: instanceID,
	}, nil
}

// CompleteTask 校验并提交 DN4 问卷
func (l *TaskLogic) CompleteTask(p auth.Principal, instanceID, taskID string, dn4 *types.DN4) (*types.CompleteTaskResponse, error) {
	done, err := l.sc.Orchestrator.Complete(l.ctx, tasks.CompletionRequest{
		InstanceID: instanceID,
		TaskID:     taskID,
		Principal:  p,
		Payload:    dn4,
	})
	if err != nil {
		return nil, err
	}

	return &types.CompleteTaskResponse{
		Message:           "Task completed successfully",
		TaskID:            done.TaskID,
		ProcessInstanceID: done.InstanceID,
		CompletedBy:       done.CompletedBy,
		DN4:               dn4,
	}, nil
}
