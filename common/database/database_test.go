package database

import (
	"testing"

	"neuroassess/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "db", Port: 5432, Username: "u", Password: "p", Database: "neuro", Charset: "utf8mb4"}

	for _, driver := range []string{"mysql", "postgres"} {
		cfg.Driver = driver
		d, err := Dialector(cfg)
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	cfg.Driver = "oracle"
	_, err := Dialector(cfg)
	assert.ErrorContains(t, err, "unsupported database driver")
}
