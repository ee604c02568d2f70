package middleware

import (
	"context"
	"time"

	"neuroassess/common/logger"
	"neuroassess/common/utils"
	"neuroassess/internal/auth"
	"neuroassess/internal/model"

	"github.com/gofiber/fiber/v2"
	fiberUtils "github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditWriter 审计日志写入
type AuditWriter interface {
	Write(ctx context.Context, log *model.CompletionLog) error
}

// GormAuditWriter 通过 gorm 写入 na_completion_log
type GormAuditWriter struct {
	db *gorm.DB
}

// NewGormAuditWriter 创建审计日志写入器
func NewGormAuditWriter(db *gorm.DB) *GormAuditWriter {
	return &GormAuditWriter{db: db}
}

// Write 写入一条审计日志
func (w *GormAuditWriter) Write(ctx context.Context, log *model.CompletionLog) error {
	return w.db.WithContext(ctx).Create(log).Error
}

// CompletionAuditMiddleware 任务完成审计中间件
// 路由需包含 :processInstanceId 与 :taskId 参数
func CompletionAuditMiddleware(writer AuditWriter, processID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()

		// fiber 的请求缓冲区会被复用，异步写入前全部拷贝
		params := string(c.Body())

		err := c.Next()

		duration := time.Since(startTime).Milliseconds()
		httpStatus := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			httpStatus = fe.Code
		}

		status := int8(1)
		errorMsg := ""
		if err != nil {
			status = 0
			errorMsg = err.Error()
		} else if httpStatus >= fiber.StatusBadRequest {
			status = 0
			errorMsg = string(c.Response().Body())
		}
		if len(errorMsg) > 500 {
			errorMsg = errorMsg[:500]
		}

		requestID, _ := c.Locals("requestid").(string)
		requestID = fiberUtils.CopyString(requestID)
		entry := &model.CompletionLog{
			RequestID:         requestID,
			ProcessID:         processID,
			ProcessInstanceID: fiberUtils.CopyString(c.Params("processInstanceId")),
			TaskID:            fiberUtils.CopyString(c.Params("taskId")),
			Username:          auth.CurrentPrincipal(c).Name,
			Method:            fiberUtils.CopyString(c.Method()),
			Path:              fiberUtils.CopyString(c.Path()),
			IP:                fiberUtils.CopyString(c.IP()),
			Params:            params,
			HTTPStatus:        httpStatus,
			Status:            status,
			Duration:          duration,
			ErrorMsg:          errorMsg,
		}

		// 异步保存日志
		utils.SafeGo("completion-audit", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if werr := writer.Write(ctx, entry); werr != nil {
				logger.Warn("write completion audit", zap.String("taskId", entry.TaskID), zap.Error(werr))
			}
		})

		return err
	}
}
