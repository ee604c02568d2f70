package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
security:
  users:
    - username: mary
      password: mary
      authorities: [ROLE_patient]
engine:
  enabled: true
  processes:
    - id: assessment
      tasks:
        - name: painAssessment
          actor_id: $patient
          group_id: practitioner
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ROLE_", cfg.Security.RolePrefix)
	assert.Equal(t, StoreMemory, cfg.Security.AccountStore)
	assert.Equal(t, "/engine", cfg.Engine.BasePath)
	assert.Equal(t, "rest-admin", cfg.Engine.ServiceRole)
	assert.Equal(t, "http://127.0.0.1:8080/engine", cfg.Facade.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Facade.Timeout)
	assert.Equal(t, "practitioners", cfg.Facade.CompletionGroup)
	assert.Equal(t, "assessment", cfg.Tasks.ProcessID)
	assert.Equal(t, "dn4", cfg.Tasks.PayloadKey)
	assert.Equal(t, "painAssessment", cfg.Tasks.DefaultTaskName)
	assert.Equal(t, AuthorizationMatcher, cfg.Tasks.Authorization)
	assert.Equal(t, 1, cfg.Tasks.ParallelInstances)
	assert.Equal(t, 15*time.Second, cfg.Tasks.ClaimLease)
	assert.Equal(t, 10*time.Minute, cfg.Tasks.ClaimTTL)
	assert.Equal(t, "assessment.tasks.completed", cfg.Events.Subject)
	assert.Equal(t, "satoken", cfg.SaToken.TokenName)
	assert.False(t, cfg.Appointments.Enabled)
	assert.Equal(t, "appointmentUrl", cfg.Appointments.URLVariable)
	assert.Equal(t, 5*time.Second, cfg.Appointments.Timeout)
}

func TestParse_DatabaseAccountStore(t *testing.T) {
	yml := strings.Replace(minimalYAML, "security:\n", "security:\n  account_store: database\n", 1) + `
database:
  driver: mysql
  host: 127.0.0.1
  port: 3306
`
	cfg, err := Parse([]byte(yml))
	require.NoError(t, err)
	assert.Equal(t, StoreDatabase, cfg.Security.AccountStore)
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
server:
  port: 9090
facade:
  timeout: 750ms
tasks:
  claim_ttl: 1h
`))
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Facade.Timeout)
	assert.Equal(t, time.Hour, cfg.Tasks.ClaimTTL)
	assert.Equal(t, 6500*time.Millisecond, cfg.Tasks.ClaimLease)
	assert.Equal(t, "http://127.0.0.1:9090/engine", cfg.Facade.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown policy", minimalYAML + "tasks:\n  authorization: trust-me\n", "tasks.authorization"},
		{"redis claims without redis", minimalYAML + "tasks:\n  claim_store: redis\n", "tasks.claim_store"},
		{"unknown claim store", minimalYAML + "tasks:\n  claim_store: etcd\n", "unknown store"},
		{"database accounts without database", strings.Replace(minimalYAML, "security:\n", "security:\n  account_store: database\n", 1), "database.driver"},
		{"appointments without engine", "security:\n  users: [{username: mary, password: mary}]\nappointments:\n  enabled: true\n", "appointments: requires engine.enabled"},
		{"facade without credential", minimalYAML + "facade:\n  enabled: true\n", "service credential"},
		{"seed references unknown process", minimalYAML + "  seed:\n    - process: other\n", "engine.seed"},
		{"memory accounts need users", "engine:\n  processes: []\n", "security.users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DuplicateProcess(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	cfg.Engine.Processes = append(cfg.Engine.Processes, cfg.Engine.Processes[0], ProcessConfig{ID: "empty"})

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate process "assessment"`)
	assert.Contains(t, err.Error(), "engine.processes[empty]")
}

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yml"))
	require.NoError(t, err)
	require.Len(t, cfg.Engine.Processes, 1)
	assert.Equal(t, "assessment", cfg.Engine.Processes[0].ID)
	assert.Len(t, cfg.Security.Users, 4)
	assert.NotNil(t, GetConfig())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
