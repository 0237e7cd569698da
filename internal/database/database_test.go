package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slotswap/internal/config"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.DBConfig
		contains []string
		wantErr  bool
	}{
		{
			name:     "mysql",
			cfg:      config.DBConfig{Driver: "mysql", User: "app", Pass: "pw", Host: "db", Port: "3306", Name: "slotswap"},
			contains: []string{"app:pw@tcp(db:3306)/slotswap", "parseTime=true", "charset=utf8mb4"},
		},
		{
			name:     "postgres",
			cfg:      config.DBConfig{Driver: "postgres", User: "app", Pass: "p@ss", Host: "db", Port: "5432", Name: "slotswap"},
			contains: []string{"postgres://app:p%40ss@db:5432/slotswap", "sslmode=disable"},
		},
		{
			name:     "sqlite",
			cfg:      config.DBConfig{Driver: "sqlite3", Path: "/tmp/x.db"},
			contains: []string{"/tmp/x.db?", "_txlock=immediate", "_busy_timeout=5000"},
		},
		{
			name:     "sqlite with params",
			cfg:      config.DBConfig{Driver: "sqlite3", Path: "file:x.db?cache=shared"},
			contains: []string{"cache=shared&_busy_timeout"},
		},
		{name: "unknown", cfg: config.DBConfig{Driver: "oracle"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := DSN(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, dsn, s)
			}
		})
	}
}

func TestStatements(t *testing.T) {
	got := statements("CREATE TABLE a (x INT);\n\n  CREATE INDEX i ON a (x) ;\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}

func TestSchemasExistForEveryDriver(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite3"} {
		raw, err := schemaFS.ReadFile("schema/" + driver + ".sql")
		require.NoError(t, err, driver)
		for _, table := range []string{"users", "refresh_tokens", "event_slots", "swap_requests"} {
			assert.True(t, strings.Contains(string(raw), "CREATE TABLE IF NOT EXISTS "+table), "%s: %s", driver, table)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.DBConfig{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "m.db")})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'refresh_tokens', 'event_slots', 'swap_requests')"))
	assert.Equal(t, 4, n)
}
