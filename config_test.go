package uow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, "uow.yaml", `
driver: postgres
host: db.internal
port: 5432
database: shop
username: app
max_open_conns: 20
conn_max_lifetime: 5m
isolation_level: Repeatable-Read
ssl:
  enabled: true
  mode: require
options:
  gorm:
    log_level: info
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "shop", cfg.Database)
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, LevelRepeatableRead, cfg.IsolationLevel)
	assert.True(t, cfg.SSL.Enabled)
	assert.Equal(t, "require", cfg.SSL.Mode)
	assert.Equal(t, "info", cfg.AdapterOptions("gorm")["log_level"])
	assert.Nil(t, cfg.AdapterOptions("bun"))
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "uow.yaml", "driver: mysql\nhost: localhost\nport: 3306\n")
	t.Setenv("UOW_HOST", "db.example.com")
	t.Setenv("UOW_PORT", "3307")
	t.Setenv("UOW_SSL_MODE", "verify-full")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, "db.example.com", cfg.Host)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "verify-full", cfg.SSL.Mode)
}

func TestLoadConfigEnvironmentOnly(t *testing.T) {
	t.Setenv("UOW_DRIVER", "sqlite")
	t.Setenv("UOW_DATABASE", "app.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "app.db", cfg.Database)
	assert.Equal(t, DefaultIsolationLevel, cfg.IsolationLevel)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, IsConfiguration(err))

	path := writeConfig(t, "bad.yaml", "isolation_level: chaos\n")
	_, err = LoadConfig(path)
	assert.True(t, IsConfiguration(err))
}

func TestParseIsolationLevel(t *testing.T) {
	tests := []struct {
		in   string
		want IsolationLevel
	}{
		{"", DefaultIsolationLevel},
		{"serializable", LevelSerializable},
		{"READ UNCOMMITTED", LevelReadUncommitted},
		{"read-committed", LevelReadCommitted},
		{"Snapshot", LevelSnapshot},
	}
	for _, tt := range tests {
		got, err := ParseIsolationLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseIsolationLevel("eventually")
	assert.True(t, IsKind(err, ErrorKindInvalidArgument))
}

func TestIsolationLevelSQL(t *testing.T) {
	assert.Equal(t, "Serializable", LevelSerializable.SQL().String())
	assert.Equal(t, "Default", LevelDefault.SQL().String())
	assert.Equal(t, "Read Committed", LevelReadCommitted.TxOptions().Isolation.String())
	assert.Equal(t, "default", LevelDefault.String())
}

func TestNormalizeDialect(t *testing.T) {
	for in, want := range map[string]string{
		"sqlite3":    DialectSQLite,
		"PostgreSQL": DialectPostgres,
		"pgsql":      DialectPostgres,
		"mssql":      DialectSQLServer,
		"mysql":      DialectMySQL,
	} {
		got, err := NormalizeDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	assert.False(t, IsDialectSupported("oracle"))
	_, err := NormalizeDialect("oracle")
	assert.True(t, IsConfiguration(err))
}
