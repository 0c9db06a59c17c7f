//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/model"
)

func TestOpenStore_SQLiteMigrates(t *testing.T) {
	useTestConfig(t)
	ctx := withContext(t)

	st, err := openStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, model.RunKindMerge, "test")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	useTestConfig(t)
	cfg.Store.Driver = "mysql"

	_, err := initStore(withContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_PostgresBadURL(t *testing.T) {
	useTestConfig(t)
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://%zz"

	_, err := initStore(withContext(t))
	require.Error(t, err)
}
