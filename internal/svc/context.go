package svc

import (
	"context"
	"errors"
	"fmt"

	"neuroassess/common/logger"
	"neuroassess/internal/auth"
	"neuroassess/internal/config"
	"neuroassess/internal/engine"
	"neuroassess/internal/events"
	"neuroassess/internal/fhir"
	"neuroassess/internal/metrics"
	"neuroassess/internal/middleware"
	"neuroassess/internal/tasks"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceContext 全局服务上下文
type ServiceContext struct {
	Config *config.Config
	DB     *gorm.DB      // 未配置数据库时为 nil
	Redis  *redis.Client // 未配置 Redis 时为 nil

	Engine       *engine.MemoryEngine
	Accounts     auth.AccountStore
	Metrics      *metrics.Registry
	Publisher    events.Publisher
	Audit        middleware.AuditWriter // 未配置数据库时为 nil
	Aggregator   *tasks.Aggregator
	Orchestrator *tasks.Orchestrator
}

var Ctx *ServiceContext

// Init 初始化服务上下文
func Init(cfg *config.Config, db *gorm.DB, rdb *redis.Client) error {
	sc, err := NewServiceContext(cfg, db, rdb)
	if err != nil {
		return err
	}
	Ctx = sc
	return nil
}

// NewServiceContext 按配置组装引擎、任务源、认领存储与事件发布
func NewServiceContext(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*ServiceContext, error) {
	accounts, err := auth.NewAccountStore(cfg, db)
	if err != nil {
		return nil, err
	}

	sc := &ServiceContext{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Engine:   NewEngine(cfg),
		Accounts: accounts,
		Metrics:  metrics.NewRegistry(),
	}
	if db != nil {
		sc.Audit = middleware.NewGormAuditWriter(db)
	}

	claimer, err := newClaimer(cfg, rdb)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		return nil, err
	}
	sc.Publisher = publisher

	direct := tasks.NewDirectSource(sc.Engine)
	var facade tasks.WorkItemSource
	var submitter tasks.Submitter = direct
	if cfg.Facade.Enabled {
		fs := tasks.NewFacadeSource(tasks.FacadeConfig{
			BaseURL:  cfg.Facade.BaseURL,
			Username: cfg.Facade.Username,
			Password: cfg.Facade.Password,
			Timeout:  cfg.Facade.Timeout,
		}, sc.Metrics)
		facade = fs
		submitter = fs
	}

	matcher := tasks.Matcher{NormalizeGroups: cfg.Tasks.NormalizeGroups}
	sc.Aggregator = tasks.NewAggregator(sc.Engine, direct, facade, tasks.AggregatorOptions{
		ProcessID:         cfg.Tasks.ProcessID,
		Matcher:           matcher,
		ParallelInstances: cfg.Tasks.ParallelInstances,
		Metrics:           sc.Metrics,
	})
	sc.Orchestrator = tasks.NewOrchestrator(sc.Engine, direct, facade, submitter, claimer, publisher, tasks.OrchestratorOptions{
		ProcessID:       cfg.Tasks.ProcessID,
		Matcher:         matcher,
		Policy:          cfg.Tasks.Authorization,
		PayloadKey:      cfg.Tasks.PayloadKey,
		DefaultTaskName: cfg.Tasks.DefaultTaskName,
		CompletionGroup: cfg.Facade.CompletionGroup,
		Metrics:         sc.Metrics,
	})
	return sc, nil
}

// NewEngine 创建进程内引擎，engine.enabled 时部署配置中的流程、按需挂载预约解析并创建种子实例
func NewEngine(cfg *config.Config) *engine.MemoryEngine {
	e := engine.NewMemoryEngine()
	if !cfg.Engine.Enabled {
		return e
	}
	for _, p := range cfg.Engine.Processes {
		def := engine.Definition{ID: p.ID, Name: p.Name}
		for _, t := range p.Tasks {
			def.Tasks = append(def.Tasks, engine.TaskTemplate{Name: t.Name, ActorID: t.ActorID, GroupID: t.GroupID})
		}
		e.Deploy(def)
	}
	if cfg.Appointments.Enabled {
		e.SetStartResolver(fhir.AppointmentResolver{
			Reader:      fhir.NewClient(cfg.Appointments.Timeout),
			URLVariable: cfg.Appointments.URLVariable,
		})
	}
	for _, s := range cfg.Engine.Seed {
		pi, err := e.StartInstance(context.Background(), s.Process, s.Variables)
		if err != nil {
			logger.Warn("seed process instance", zap.String("process", s.Process), zap.Error(err))
			continue
		}
		logger.Info("seeded process instance", zap.String("process", s.Process), zap.String("instance", pi.ID()))
	}
	return e
}

func newClaimer(cfg *config.Config, rdb *redis.Client) (tasks.Claimer, error) {
	switch cfg.Tasks.ClaimStore {
	case config.StoreRedis:
		if rdb == nil {
			return nil, errors.New("claim store: redis not initialized")
		}
		return tasks.NewRedisClaimer(rdb, cfg.App.Name+":claim:", cfg.Tasks.ClaimLease, cfg.Tasks.ClaimTTL), nil
	default:
		return tasks.NewMemoryClaimer(cfg.Tasks.ClaimLease, cfg.Tasks.ClaimTTL), nil
	}
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.Events.NatsURL == "" {
		return events.NopPublisher{}, nil
	}
	p, err := events.NewNatsPublisher(cfg.Events.NatsURL, cfg.Events.Subject)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return p, nil
}

// Close 释放事件连接
func (s *ServiceContext) Close() error {
	if s.Publisher != nil {
		return s.Publisher.Close()
	}
	return nil
}
