package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/workflow")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "super_admin", cfg.Workflow.SuperuserRole)
	assert.Equal(t, "admin", cfg.Workflow.DefaultApprovalRole)
	assert.Equal(t, 3, cfg.Workflow.ApprovalPoolSize)
	assert.Equal(t, 75.0, cfg.Workflow.AtRiskThreshold)
	assert.Equal(t, time.Minute, cfg.Workflow.SweepInterval)
	assert.Equal(t, []string{"resolved", "closed", "done", "cancelled"}, cfg.Workflow.ResolvedStatuses)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("WORKFLOW_APPROVAL_POOL_SIZE", "5")
	t.Setenv("SLA_RESOLVED_STATUSES", "done, won't do ,")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Workflow.ApprovalPoolSize)
	assert.Equal(t, []string{"done", "won't do"}, cfg.Workflow.ResolvedStatuses)
	assert.True(t, cfg.Redis.Enabled())
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := FromEnv()
	cfg.Storage.Driver = StoragePostgres
	cfg.Database.URL = ""
	cfg.JWT.Secret = ""
	cfg.Workflow.ApprovalPoolSize = 0
	cfg.Workflow.AtRiskThreshold = 120

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"DATABASE_URL is required",
		"JWT_SECRET is required",
		"WORKFLOW_APPROVAL_POOL_SIZE",
		"SLA_AT_RISK_THRESHOLD",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_Production(t *testing.T) {
	cfg := FromEnv()
	cfg.App.Environment = "production"
	cfg.Storage.Driver = StorageMemory
	cfg.JWT.Secret = "short"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
	assert.Contains(t, err.Error(), "not allowed in production")
	assert.True(t, cfg.IsProduction())
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := FromEnv()
	cfg.Database.URL = "postgres://user:pw@db:5432/workflow"
	cfg.JWT.Secret = "top-secret"

	s := cfg.String()
	assert.NotContains(t, s, "pw")
	assert.NotContains(t, s, "top-secret")
	assert.Contains(t, s, "@db:5432/workflow")
}

func TestLoadForTooling_SkipsServerSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := LoadForTooling()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)

	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err = LoadForTooling()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER must be")
}
