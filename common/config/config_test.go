package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "satoken", c.SaToken.TokenName)
	assert.Equal(t, int64(-1), c.SaToken.ActiveTimeout)
	assert.False(t, c.Database.Enabled())
	assert.False(t, c.Redis.Enabled())
}

func TestRedisURL(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6379, DB: 2}
	assert.True(t, r.Enabled())
	assert.Equal(t, "redis://cache:6379/2", r.URL())

	r.Password = "s3cret"
	assert.Equal(t, "redis://:s3cret@cache:6379/2", r.URL())
}

func TestGlobalConfig(t *testing.T) {
	c := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: 9000}}
	SetConfig(c)
	assert.Same(t, c, GetConfig())
	assert.Equal(t, "0.0.0.0:9000", GetConfig().Server.Addr())
}
