package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/foreman/internal/config"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := config.NewDefaultConfig()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, config.DefaultAPIPort, cfg.APIPort)
	assert.Equal(t, "0.0.0.0", cfg.APIHost)
	assert.Equal(t, 10, cfg.Tasks.MaxConcurrent)
	assert.Equal(t, 300*time.Second, cfg.Tasks.Timeout)
	assert.Equal(t, 10, cfg.Decision.MaxOptions)
	assert.Equal(t, 30*time.Second, cfg.Decision.Timeout)
	assert.Equal(t, 20, cfg.Workflow.MaxConcurrent)
	assert.Equal(t, 3, cfg.Workflow.Retry.MaxAttempts)
	assert.Equal(t, int64(1000), cfg.Workflow.Retry.InitialDelayMs)
	assert.Equal(t, 2.0, cfg.Workflow.Retry.BackoffMultiplier)
	assert.Equal(t, config.DefaultScriptTimeout, cfg.Workflow.ScriptTimeout)
	assert.Equal(t, 60*time.Second, cfg.Monitor.MetricsInterval)
	assert.Equal(t, 30*time.Second, cfg.Monitor.HealthInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Monitor.Retention)
	assert.Equal(t, 80.0, cfg.Monitor.Thresholds.CPUPercent)
	assert.Equal(t, 85.0, cfg.Monitor.Thresholds.MemoryPercent)
	assert.Equal(t, 100.0, cfg.Monitor.Thresholds.QueueDepth)
	assert.Equal(t, 0.1, cfg.Monitor.Thresholds.FailureRate)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		configMod func(*config.Config)
		err       error
	}{
		{
			name:      "api_port_zero",
			configMod: func(c *config.Config) { c.APIPort = 0 },
			err:       config.ErrInvalidAPIPort,
		},
		{
			name:      "api_port_too_high",
			configMod: func(c *config.Config) { c.APIPort = 70000 },
			err:       config.ErrInvalidAPIPort,
		},
		{
			name:      "task_concurrency",
			configMod: func(c *config.Config) { c.Tasks.MaxConcurrent = 0 },
			err:       config.ErrInvalidConcurrency,
		},
		{
			name:      "task_timeout",
			configMod: func(c *config.Config) { c.Tasks.Timeout = 0 },
			err:       config.ErrInvalidTimeout,
		},
		{
			name: "default_executor",
			configMod: func(c *config.Config) {
				c.Tasks.DefaultExecutor = ""
			},
			err: config.ErrMissingDefaultTarget,
		},
		{
			name:      "max_options",
			configMod: func(c *config.Config) { c.Decision.MaxOptions = 0 },
			err:       config.ErrInvalidMaxOptions,
		},
		{
			name: "history_limit",
			configMod: func(c *config.Config) {
				c.Decision.HistoryLimit = -1
			},
			err: config.ErrInvalidHistoryLimit,
		},
		{
			name: "workflow_concurrency",
			configMod: func(c *config.Config) {
				c.Workflow.MaxConcurrent = 0
			},
			err: config.ErrInvalidConcurrency,
		},
		{
			name: "step_attempts",
			configMod: func(c *config.Config) {
				c.Workflow.Retry.MaxAttempts = 0
			},
			err: config.ErrInvalidStepAttempts,
		},
		{
			name: "backoff",
			configMod: func(c *config.Config) {
				c.Workflow.Retry.BackoffMultiplier = 0.5
			},
			err: config.ErrInvalidBackoff,
		},
		{
			name: "script_timeout",
			configMod: func(c *config.Config) {
				c.Workflow.ScriptTimeout = 0
			},
			err: config.ErrInvalidTimeout,
		},
		{
			name: "retention",
			configMod: func(c *config.Config) {
				c.Monitor.Retention = 0
			},
			err: config.ErrInvalidRetention,
		},
		{
			name: "threshold",
			configMod: func(c *config.Config) {
				c.Monitor.Thresholds.FailureRate = 0
			},
			err: config.ErrInvalidThreshold,
		},
		{
			name: "health_interval",
			configMod: func(c *config.Config) {
				c.Monitor.HealthInterval = 0
			},
			err: config.ErrInvalidInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.configMod(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.err)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9090")
	t.Setenv("TRACE_EXPORT", "true")
	t.Setenv("MAX_CONCURRENT_TASKS", "4")
	t.Setenv("TASK_TIMEOUT", "45s")
	t.Setenv("TASK_AUTO_ASSIGN", "false")
	t.Setenv("DECISION_TIMEOUT", "1500")
	t.Setenv("STEP_BACKOFF_MULTIPLIER", "1.5")
	t.Setenv("STEP_INITIAL_DELAY", "0")
	t.Setenv("SCRIPT_TIMEOUT", "250ms")
	t.Setenv("CPU_THRESHOLD", "95")
	t.Setenv("METRICS_REDIS_ADDR", "localhost:6379")
	t.Setenv("METRICS_REDIS_DB", "2")
	t.Setenv("ARCHIVE_URL", "mem://")

	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "127.0.0.1", cfg.APIHost)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.True(t, cfg.Telemetry.Traces)
	assert.False(t, cfg.Telemetry.Logs)
	assert.Equal(t, 4, cfg.Tasks.MaxConcurrent)
	assert.Equal(t, 45*time.Second, cfg.Tasks.Timeout)
	assert.False(t, cfg.Tasks.AutoAssign)
	assert.Equal(t, 1500*time.Millisecond, cfg.Decision.Timeout)
	assert.Equal(t, 1.5, cfg.Workflow.Retry.BackoffMultiplier)
	assert.Equal(t, int64(0), cfg.Workflow.Retry.InitialDelayMs)
	assert.Equal(t, 250*time.Millisecond, cfg.Workflow.ScriptTimeout)
	assert.Equal(t, 95.0, cfg.Monitor.Thresholds.CPUPercent)
	assert.Equal(t, "localhost:6379", cfg.Monitor.Redis.Addr)
	assert.Equal(t, 2, cfg.Monitor.Redis.DB)
	assert.Equal(t, "mem://", cfg.Workflow.ArchiveURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvErrors(t *testing.T) {
	tests := []struct {
		key   string
		value string
		err   error
	}{
		{"API_PORT", "abc", config.ErrInvalidEnvValue},
		{"API_PORT", "70000", config.ErrEnvValueOutOfRange},
		{"TASK_TIMEOUT", "soon", config.ErrInvalidEnvValue},
		{"TASK_TIMEOUT", "-5s", config.ErrEnvValueOutOfRange},
		{"ALERTING_ENABLED", "maybe", config.ErrInvalidEnvValue},
		{"FAILURE_RATE_THRESHOLD", "2", config.ErrEnvValueOutOfRange},
		{"STEP_BACKOFF_MULTIPLIER", "x", config.ErrInvalidEnvValue},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := config.NewDefaultConfig()
			assert.ErrorIs(t, cfg.LoadFromEnv(), tt.err)
		})
	}
}
