package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waitboard/config"
	"waitboard/internal/model"
)

func TestInit_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		DSN:          fmt.Sprintf("file:init_%d?mode=memory&cache=shared", time.Now().UnixNano()),
		MaxOpenConns: 1,
	}
	require.True(t, cfg.IsSQLite())

	gdb, err := Init(cfg, nil)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, table := range []any{&model.CachedItem{}, &model.CachedClass{}, &model.PushSubscription{}} {
		assert.True(t, gdb.Migrator().HasTable(table))
	}
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	tests := []struct {
		dsn  string
		name string
	}{
		{"file:waitboard.db", "sqlite"},
		{"/var/lib/waitboard/cache.db", "sqlite"},
		{"host=localhost user=waitboard dbname=waitboard sslmode=disable", "postgres"},
	}
	for _, tc := range tests {
		t.Run(tc.dsn, func(t *testing.T) {
			assert.Equal(t, tc.name, dialector(&config.DatabaseConfig{DSN: tc.dsn}).Name())
		})
	}
}
