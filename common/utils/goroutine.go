package utils

import (
	"fmt"
	"runtime/debug"

	"neuroassess/common/logger"

	"go.uber.org/zap"
)

// SafeGo 安全地启动一个带名称的 goroutine，panic 会被捕获并记录日志
// 使用方式: utils.SafeGo("audit-write", func() { ... })
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// Recover 捕获 panic 并记录堆栈，需配合 defer 使用
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("goroutine panic recovered",
			zap.String("name", name),
			zap.String("panic", fmt.Sprint(r)),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
