package config

import (
	"fmt"
	"sync"
)

// Config 基础设施配置（各服务通过 inline 嵌入后扩展业务配置）
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	SaToken  SaTokenConfig  `yaml:"sa_token"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"` // dev, test, prod
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host"`
	ReadTimeout  int    `yaml:"read_timeout"`  // 秒
	WriteTimeout int    `yaml:"write_timeout"` // 秒
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置，driver 为空时不启用数据库
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // mysql, postgres
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	Charset         string `yaml:"charset"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// Enabled 是否配置了数据库
func (d DatabaseConfig) Enabled() bool {
	return d.Driver != ""
}

// RedisConfig Redis配置，host 为空时不启用 Redis
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled 是否配置了 Redis
func (r RedisConfig) Enabled() bool {
	return r.Host != "" && r.Port > 0
}

// URL redis://:password@host:port/db
func (r RedisConfig) URL() string {
	if r.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", r.Password, r.Host, r.Port, r.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", r.Host, r.Port, r.DB)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// SaTokenConfig SaToken配置
type SaTokenConfig struct {
	TokenName     string `yaml:"token_name"`      // token名称
	TokenStyle    string `yaml:"token_style"`     // token风格: uuid, simple-uuid, random-32, random-64, random-128
	Timeout       int64  `yaml:"timeout"`         // token有效期(秒)
	ActiveTimeout int64  `yaml:"active_timeout"`  // token活跃检测超时时间(秒)
	IsConcurrent  bool   `yaml:"is_concurrent"`   // 是否允许同一账号并发登录
	IsShare       bool   `yaml:"is_share"`        // 是否共用token
	MaxLoginCount int    `yaml:"max_login_count"` // 同一账号最大登录数量
	IsLog         bool   `yaml:"is_log"`          // 是否输出日志
}

// ApplyDefaults 填充基础设施默认值
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "neuroassess"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.SaToken.TokenName == "" {
		c.SaToken.TokenName = "satoken"
	}
	if c.SaToken.TokenStyle == "" {
		c.SaToken.TokenStyle = "uuid"
	}
	if c.SaToken.Timeout == 0 {
		c.SaToken.Timeout = 86400
	}
	if c.SaToken.ActiveTimeout == 0 {
		c.SaToken.ActiveTimeout = -1
	}
	if c.SaToken.MaxLoginCount == 0 {
		c.SaToken.MaxLoginCount = 12
	}
}

var (
	globalConfig *Config
	mu           sync.RWMutex
)

// GetConfig 获取全局配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// SetConfig 设置全局配置
func SetConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
