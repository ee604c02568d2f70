package response

import (
	"github.com/gofiber/fiber/v2"
)

// Body 响应体，字段直接平铺在 JSON 顶层
type Body map[string]any

// 响应消息定义
const (
	MsgUnauthorized = "unauthorized"
	MsgForbidden    = "forbidden"
	MsgNotFound     = "not found"
	MsgConflict     = "conflict"
	MsgBadRequest   = "bad request"
	MsgServerError  = "server error"
)

// OK 成功响应
func OK(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(data)
}

// Fail 错误响应，error 字段为消息，extra 合并到顶层
func Fail(c *fiber.Ctx, status int, message string, extra Body) error {
	body := Body{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// Unauthorized 未认证响应
func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgUnauthorized
	}
	c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="neuroassess"`)
	return Fail(c, fiber.StatusUnauthorized, message, nil)
}

// Forbidden 禁止访问响应
func Forbidden(c *fiber.Ctx, message string, extra Body) error {
	if message == "" {
		message = MsgForbidden
	}
	return Fail(c, fiber.StatusForbidden, message, extra)
}

// NotFound 未找到响应
func NotFound(c *fiber.Ctx, message string, extra Body) error {
	if message == "" {
		message = MsgNotFound
	}
	return Fail(c, fiber.StatusNotFound, message, extra)
}

// Conflict 冲突响应
func Conflict(c *fiber.Ctx, message string, extra Body) error {
	if message == "" {
		message = MsgConflict
	}
	return Fail(c, fiber.StatusConflict, message, extra)
}

// BadRequest 参数错误响应
func BadRequest(c *fiber.Ctx, message string, extra Body) error {
	if message == "" {
		message = MsgBadRequest
	}
	return Fail(c, fiber.StatusBadRequest, message, extra)
}

// ServerError 服务器错误响应
func ServerError(c *fiber.Ctx, message string, extra Body) error {
	if message == "" {
		message = MsgServerError
	}
	return Fail(c, fiber.StatusInternalServerError, message, extra)
}
