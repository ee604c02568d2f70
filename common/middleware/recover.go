package middleware

import (
	"fmt"

	"neuroassess/common/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Recover 异常恢复中间件，panic 写入 zap
func Recover() fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("panic recovered",
				zap.String("path", c.Path()),
				zap.String("panic", fmt.Sprint(e)),
			)
		},
	})
}
