//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/config"
)

// useTestConfig installs a default configuration backed by a fresh SQLite
// file and returns its path.
func useTestConfig(t *testing.T) string {
	t.Helper()
	c, err := config.Load()
	require.NoError(t, err)

	dsn := filepath.Join(t.TempDir(), "deepbiz.db")
	c.Store.DatabaseURL = dsn
	c.Ingest.RequestIntervalMs = 0
	c.API.Key = ""
	c.Anthropic.Key = ""
	c.Google.PlacesKey = ""
	c.Log.File = ""

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return dsn
}

func withContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
