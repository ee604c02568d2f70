package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"neuroassess/common/database"
	"neuroassess/common/logger"
	commonRedis "neuroassess/common/redis"
	"neuroassess/internal/auth"
	"neuroassess/internal/config"
	"neuroassess/internal/model"
	"neuroassess/internal/router"
	"neuroassess/internal/svc"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动任务网关",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 加载配置
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 初始化日志
	logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	defer logger.Sync()

	// 初始化数据库（可选）
	var db *gorm.DB
	if cfg.Database.Enabled() {
		if db, err = database.Init(&cfg.Database); err != nil {
			return fmt.Errorf("初始化数据库失败: %w", err)
		}
		defer database.Close()

		if err := model.AutoMigrate(db); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
		if cfg.Security.AccountStore == config.StoreDatabase {
			if err := seedAccounts(ctx, db, cfg.Security.Users); err != nil {
				return fmt.Errorf("初始化账号失败: %w", err)
			}
		}
	}

	// 初始化Redis（可选）
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		if rdb, err = commonRedis.Init(ctx, &cfg.Redis); err != nil {
			return fmt.Errorf("初始化Redis失败: %w", err)
		}
		defer commonRedis.Close()
	}

	// 初始化SaToken
	if err := auth.InitSaToken(cfg); err != nil {
		return fmt.Errorf("初始化SaToken失败: %w", err)
	}

	// 初始化服务上下文
	if err := svc.Init(cfg, db, rdb); err != nil {
		return fmt.Errorf("初始化服务上下文失败: %w", err)
	}
	defer svc.Ctx.Close()

	app := router.NewApp(cfg)
	router.Setup(app, svc.Ctx)

	// 启动服务器
	addr := cfg.Server.Addr()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务器启动", zap.String("addr", addr),
			zap.String("authorization", cfg.Tasks.Authorization),
			zap.Bool("facade", cfg.Facade.Enabled),
		)
		errCh <- app.Listen(addr)
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("服务器启动失败: %w", err)
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务器...")
	if err := app.Shutdown(); err != nil {
		logger.Warn("服务器关闭失败", zap.Error(err))
	}
	logger.Info("服务器已关闭")
	return nil
}

// seedAccounts 账号表为空时写入配置中的账号
func seedAccounts(ctx context.Context, db *gorm.DB, users []config.UserConfig) error {
	var count int64
	if err := db.WithContext(ctx).Model(&model.Account{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	store := auth.NewDBAccountStore(db)
	for _, u := range users {
		if err := store.Upsert(ctx, u.Username, u.Password, u.Authorities); err != nil {
			return err
		}
	}
	logger.Info("默认账号初始化完成", zap.Int("count", len(users)))
	return nil
}
