package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	commonConfig "neuroassess/common/config"

	"gopkg.in/yaml.v3"
)

// 授权策略
const (
	// AuthorizationMatcher 主路径与降级路径统一由本地匹配器判定
	AuthorizationMatcher = "matcher"
	// AuthorizationLegacy 信任引擎的按用户列表，降级路径按存在即授权
	AuthorizationLegacy = "legacy"
)

// 存储类型
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDatabase = "database"
)

// Config 应用配置
type Config struct {
	commonConfig.Config `yaml:",inline"`
	Security            SecurityConfig     `yaml:"security"`
	Engine              EngineConfig       `yaml:"engine"`
	Facade              FacadeConfig       `yaml:"facade"`
	Tasks               TasksConfig        `yaml:"tasks"`
	Events              EventsConfig       `yaml:"events"`
	Appointments        AppointmentsConfig `yaml:"appointments"`
}

// SecurityConfig 认证配置
type SecurityConfig struct {
	RolePrefix   string       `yaml:"role_prefix"`   // 角色前缀，解析主体时去除
	AccountStore string       `yaml:"account_store"` // memory, database
	Users        []UserConfig `yaml:"users"`
}

// UserConfig 内存账号（密码可为明文或 bcrypt 哈希）
type UserConfig struct {
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	Authorities []string `yaml:"authorities"`
}

// EngineConfig 进程内流程引擎配置
type EngineConfig struct {
	Enabled     bool            `yaml:"enabled"`
	BasePath    string          `yaml:"base_path"`    // 引擎 REST 挂载路径
	ServiceRole string          `yaml:"service_role"` // 访问引擎 REST 所需角色
	Processes   []ProcessConfig `yaml:"processes"`
	Seed        []SeedConfig    `yaml:"seed"`
}

// ProcessConfig 流程定义
type ProcessConfig struct {
	ID    string       `yaml:"id"`
	Name  string       `yaml:"name"`
	Tasks []TaskConfig `yaml:"tasks"`
}

// TaskConfig 人工任务模板，actor_id / group_id 以 $ 开头时取实例变量
type TaskConfig struct {
	Name    string `yaml:"name"`
	ActorID string `yaml:"actor_id"`
	GroupID string `yaml:"group_id"`
}

// SeedConfig 启动时创建的流程实例
type SeedConfig struct {
	Process   string         `yaml:"process"`
	Variables map[string]any `yaml:"variables"`
}

// FacadeConfig 引擎任务接口（回环 HTTP）配置
type FacadeConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"base_url"`
	Username        string        `yaml:"username"` // 服务账号
	Password        string        `yaml:"password"`
	Timeout         time.Duration `yaml:"timeout"`
	CompletionGroup string        `yaml:"completion_group"` // 提交任务时固定的 group 参数
}

// TasksConfig 任务发现与完成配置
type TasksConfig struct {
	ProcessID          string        `yaml:"process_id"`
	PayloadKey         string        `yaml:"payload_key"`
	DefaultTaskName    string        `yaml:"default_task_name"`
	Authorization      string        `yaml:"authorization"` // matcher, legacy
	NormalizeGroups    bool          `yaml:"normalize_groups"`
	ParallelInstances  int           `yaml:"parallel_instances"`
	ClaimStore         string        `yaml:"claim_store"` // memory, redis
	ClaimLease         time.Duration `yaml:"claim_lease"`
	ClaimTTL           time.Duration `yaml:"claim_ttl"`
	ExposeEngineErrors bool          `yaml:"expose_engine_errors"`
}

// EventsConfig 事件发布配置，nats_url 为空时不发布
type EventsConfig struct {
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// AppointmentsConfig FHIR 预约解析配置，启用后以预约填充实例的 patient / practitioner 变量
type AppointmentsConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URLVariable string        `yaml:"url_variable"` // 携带预约 URL 的实例变量
	Timeout     time.Duration `yaml:"timeout"`
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	c.Config.ApplyDefaults()

	if c.Security.RolePrefix == "" {
		c.Security.RolePrefix = "ROLE_"
	}
	if c.Security.AccountStore == "" {
		c.Security.AccountStore = StoreMemory
	}

	if c.Engine.BasePath == "" {
		c.Engine.BasePath = "/engine"
	}
	if c.Engine.ServiceRole == "" {
		c.Engine.ServiceRole = "rest-admin"
	}

	if c.Facade.BaseURL == "" {
		c.Facade.BaseURL = fmt.Sprintf("http://127.0.0.1:%d%s", c.Server.Port, c.Engine.BasePath)
	}
	if c.Facade.Timeout == 0 {
		c.Facade.Timeout = 5 * time.Second
	}
	if c.Facade.CompletionGroup == "" {
		c.Facade.CompletionGroup = "practitioners"
	}

	if c.Tasks.ProcessID == "" {
		c.Tasks.ProcessID = "assessment"
	}
	if c.Tasks.PayloadKey == "" {
		c.Tasks.PayloadKey = "dn4"
	}
	if c.Tasks.DefaultTaskName == "" {
		c.Tasks.DefaultTaskName = "painAssessment"
	}
	if c.Tasks.Authorization == "" {
		c.Tasks.Authorization = AuthorizationMatcher
	}
	if c.Tasks.ParallelInstances <= 0 {
		c.Tasks.ParallelInstances = 1
	}
	if c.Tasks.ClaimStore == "" {
		c.Tasks.ClaimStore = StoreMemory
	}
	if c.Tasks.ClaimLease == 0 {
		c.Tasks.ClaimLease = 2*c.Facade.Timeout + 5*time.Second
	}
	if c.Tasks.ClaimTTL == 0 {
		c.Tasks.ClaimTTL = 10 * time.Minute
	}

	if c.Events.Subject == "" {
		c.Events.Subject = "assessment.tasks.completed"
	}

	if c.Appointments.URLVariable == "" {
		c.Appointments.URLVariable = "appointmentUrl"
	}
	if c.Appointments.Timeout == 0 {
		c.Appointments.Timeout = 5 * time.Second
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	switch c.Tasks.Authorization {
	case AuthorizationMatcher, AuthorizationLegacy:
	default:
		errs = append(errs, fmt.Errorf("tasks.authorization: unknown policy %q", c.Tasks.Authorization))
	}

	switch c.Tasks.ClaimStore {
	case StoreMemory:
	case StoreRedis:
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("tasks.claim_store: redis requires redis.host and redis.port"))
		}
	default:
		errs = append(errs, fmt.Errorf("tasks.claim_store: unknown store %q", c.Tasks.ClaimStore))
	}

	switch c.Security.AccountStore {
	case StoreMemory:
		if len(c.Security.Users) == 0 {
			errs = append(errs, errors.New("security.users: memory account store needs at least one user"))
		}
	case StoreDatabase:
		if !c.Database.Enabled() {
			errs = append(errs, errors.New("security.account_store: database requires database.driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("security.account_store: unknown store %q", c.Security.AccountStore))
	}

	if c.Facade.Enabled && (c.Facade.Username == "" || c.Facade.Password == "") {
		errs = append(errs, errors.New("facade: service credential (username/password) is required"))
	}
	if c.Facade.Timeout < 0 {
		errs = append(errs, errors.New("facade.timeout must be positive"))
	}
	if c.Appointments.Enabled && !c.Engine.Enabled {
		errs = append(errs, errors.New("appointments: requires engine.enabled"))
	}
	if c.Appointments.Timeout < 0 {
		errs = append(errs, errors.New("appointments.timeout must be positive"))
	}

	seen := make(map[string]bool)
	for _, p := range c.Engine.Processes {
		if p.ID == "" {
			errs = append(errs, errors.New("engine.processes: process id is required"))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("engine.processes: duplicate process %q", p.ID))
		}
		seen[p.ID] = true
		if len(p.Tasks) == 0 {
			errs = append(errs, fmt.Errorf("engine.processes[%s]: at least one task is required", p.ID))
		}
	}
	for _, s := range c.Engine.Seed {
		if !seen[s.Process] {
			errs = append(errs, fmt.Errorf("engine.seed: unknown process %q", s.Process))
		}
	}

	return errors.Join(errs...)
}

var (
	globalConfig *Config
	once         sync.Once
)

// Parse 解析配置内容
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	once.Do(func() {
		globalConfig = cfg
		// 同步到公共配置
		commonConfig.SetConfig(&cfg.Config)
	})

	return cfg, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}
