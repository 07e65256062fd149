package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	manager, err := NewManager()
	require.NoError(t, err)
	return manager
}

func TestDefaultsAreValid(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.Validate())

	cfg := manager.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "specimen_registry", cfg.Database.Database)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, "registration_audit.db", cfg.Audit.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Positive(t, cfg.RateLimit.RequestsPerSecond)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("SPECIMEN_REGISTRY_SERVER_PORT", "9999")
	t.Setenv("SPECIMEN_REGISTRY_DATABASE_HOST", "db.internal")

	manager := newTestManager(t)
	cfg := manager.GetConfig()
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "invalid server port",
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database host is required",
		},
		{
			name:    "missing database name",
			mutate:  func(c *Config) { c.Database.Database = "" },
			wantErr: "database name is required",
		},
		{
			name:    "missing audit path",
			mutate:  func(c *Config) { c.Audit.Path = "" },
			wantErr: "audit journal path is required",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit.RequestsPerSecond = 0 },
			wantErr: "invalid rate limit",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newTestManager(t)
			tt.mutate(manager.GetConfig())
			err := manager.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	manager := newTestManager(t)
	cfg := manager.GetConfig()
	cfg.Database.Username = "svc"
	cfg.Database.Password = "secret"
	cfg.Database.Host = "db"
	cfg.Database.Port = 5433
	cfg.Database.Database = "registry"
	cfg.Database.SSLMode = "require"

	assert.Equal(t, "postgres://svc:secret@db:5433/registry?sslmode=require", manager.GetDatabaseURL())
}

func TestIsProduction(t *testing.T) {
	manager := newTestManager(t)
	assert.False(t, manager.IsProduction())

	manager.GetConfig().Environment = "Production"
	assert.True(t, manager.IsProduction())
}
