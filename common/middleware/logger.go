package middleware

import (
	"neuroassess/common/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

// RequestID 请求ID中间件，存入 Locals("requestid")
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  uuid.NewString,
		ContextKey: "requestid",
	})
}

// Logger 日志中间件
func Logger() fiber.Handler {
	return logger.Middleware()
}
