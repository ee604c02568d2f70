package auth

import (
	"fmt"

	"neuroassess/common/logger"
	"neuroassess/internal/config"

	"github.com/click33/sa-token-go/core"
	"github.com/click33/sa-token-go/storage/memory"
	satokenRedis "github.com/click33/sa-token-go/storage/redis"
	"github.com/click33/sa-token-go/stputil"
	"go.uber.org/zap"
)

var manager *core.Manager

// InitSaToken 初始化SaToken
// Redis 配置有效时使用 Redis 存储，否则使用内存存储
func InitSaToken(cfg *config.Config) error {
	var storage core.Storage

	if cfg.Redis.Enabled() {
		s, err := satokenRedis.NewStorage(cfg.Redis.URL())
		if err != nil {
			logger.Warn("[SaToken] Redis存储初始化失败，降级使用内存存储", zap.Error(err))
			storage = memory.NewStorage()
		} else {
			logger.Info("[SaToken] 使用Redis存储")
			storage = s
		}
	} else {
		storage = memory.NewStorage()
		logger.Info("[SaToken] 使用内存存储（服务重启后token会丢失）")
	}

	manager = core.NewBuilder().
		Storage(storage).
		TokenName(cfg.SaToken.TokenName).
		Timeout(cfg.SaToken.Timeout).
		ActiveTimeout(cfg.SaToken.ActiveTimeout).
		IsConcurrent(cfg.SaToken.IsConcurrent).
		IsShare(cfg.SaToken.IsShare).
		MaxLoginCount(cfg.SaToken.MaxLoginCount).
		IsLog(cfg.SaToken.IsLog).
		Build()

	stputil.SetManager(manager)
	return nil
}

// Ready SaToken 是否已初始化
func Ready() bool {
	return manager != nil
}

// Login 登录，loginId 为账号名
func Login(username string) (string, error) {
	if !Ready() {
		return "", fmt.Errorf("sa-token not initialized")
	}
	return stputil.Login(username)
}

// LogoutByToken 根据Token登出
func LogoutByToken(tokenValue string) error {
	if !Ready() {
		return nil
	}
	return stputil.LogoutByToken(tokenValue)
}

// IsLogin 判断是否登录
func IsLogin(tokenValue string) bool {
	if !Ready() || tokenValue == "" {
		return false
	}
	return stputil.IsLogin(tokenValue)
}

// GetLoginId 获取登录ID（账号名）
func GetLoginId(tokenValue string) (string, error) {
	return stputil.GetLoginID(tokenValue)
}
