package auth

import (
	"testing"

	"neuroassess/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaTokenSession(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	require.NoError(t, InitSaToken(cfg))
	require.True(t, Ready())

	token, err := Login("mary")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, IsLogin(token))
	id, err := GetLoginId(token)
	require.NoError(t, err)
	assert.Equal(t, "mary", id)

	require.NoError(t, LogoutByToken(token))
	assert.False(t, IsLogin(token))
	assert.False(t, IsLogin(""))
}
