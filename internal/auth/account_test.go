package auth

import (
	"context"
	"io"
	"testing"

	"neuroassess/common/utils"
	"neuroassess/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return utils.Unmarshal(data, v)
}

func TestMemoryAccountStore(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	s := NewMemoryAccountStore([]config.UserConfig{
		{Username: "mary", Password: "mary", Authorities: []string{"ROLE_patient"}},
		{Username: "paul", Password: hash, Authorities: []string{"ROLE_practitioner"}},
		{Username: "nopass", Authorities: []string{"ROLE_patient"}},
	})
	ctx := context.Background()

	acc, err := s.Authenticate(ctx, "mary", "mary")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_patient"}, acc.Authorities)

	acc, err = s.Authenticate(ctx, "paul", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "paul", acc.Username)

	_, err = s.Authenticate(ctx, "paul", hash)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "mary", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "ghost", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nopass", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	acc, err = s.Lookup(ctx, "paul")
	require.NoError(t, err)
	acc.Authorities[0] = "ROLE_admin"
	again, _ := s.Lookup(ctx, "paul")
	assert.Equal(t, []string{"ROLE_practitioner"}, again.Authorities)

	_, err = s.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestNewAccountStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.AccountStore = config.StoreMemory
	s, err := NewAccountStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryAccountStore{}, s)

	cfg.Security.AccountStore = config.StoreDatabase
	_, err = NewAccountStore(cfg, nil)
	assert.Error(t, err)
}
