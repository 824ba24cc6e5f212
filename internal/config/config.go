package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// Config holds configuration settings for the orchestration core
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Telemetry
		Telemetry TelemetryConfig

		// Components
		Tasks    TaskConfig
		Decision DecisionConfig
		Workflow WorkflowConfig
		Monitor  MonitorConfig

		ShutdownTimeout time.Duration
	}

	// TelemetryConfig selects which OpenTelemetry signals are exported
	TelemetryConfig struct {
		Logs    bool
		Metrics bool
		Traces  bool
	}

	// TaskConfig configures the task scheduler
	TaskConfig struct {
		DefaultExecutor string
		MaxConcurrent   int
		Timeout         time.Duration
		ProcessInterval time.Duration
		AutoAssign      bool
	}

	// DecisionConfig configures the decision engine
	DecisionConfig struct {
		MaxOptions   int
		HistoryLimit int
		Timeout      time.Duration
	}

	// WorkflowConfig configures the workflow engine
	WorkflowConfig struct {
		Retry         api.RetryPolicy
		DefinitionDir string
		TemplateDir   string
		ArchiveURL    string
		MaxConcurrent int
		ScriptTimeout time.Duration
	}

	// MonitorConfig configures the system monitor
	MonitorConfig struct {
		Thresholds      Thresholds
		Redis           RedisConfig
		MetricsInterval time.Duration
		HealthInterval  time.Duration
		Retention       time.Duration
		AlertingEnabled bool
		HealingEnabled  bool
	}

	// Thresholds are the built-in alerting limits
	Thresholds struct {
		CPUPercent    float64
		MemoryPercent float64
		QueueDepth    float64
		FailureRate   float64
	}

	// RedisConfig selects a Redis-backed metric store when Addr is set
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}
)

const (
	DefaultAPIPort         = 8080
	DefaultAPIHost         = "0.0.0.0"
	DefaultShutdownTimeout = 10 * time.Second
	MaxTCPPort             = 65535

	DefaultMaxConcurrentTasks  = 10
	DefaultTaskTimeout         = 300 * time.Second
	DefaultTaskProcessInterval = time.Second
	DefaultExecutor            = "default"

	DefaultDecisionMaxOptions   = 10
	DefaultDecisionTimeout      = 30 * time.Second
	DefaultDecisionHistoryLimit = 1000

	DefaultMaxConcurrentWorkflows = 20
	DefaultStepMaxAttempts        = 3
	DefaultStepInitialDelayMs     = 1000
	DefaultStepBackoffMultiplier  = 2.0
	DefaultScriptTimeout          = 5 * time.Second

	DefaultMetricsInterval = 60 * time.Second
	DefaultHealthInterval  = 30 * time.Second
	DefaultRetention       = 7 * 24 * time.Hour

	DefaultCPUThreshold         = 80.0
	DefaultMemoryThreshold      = 85.0
	DefaultQueueDepthThreshold  = 100.0
	DefaultFailureRateThreshold = 0.1

	DefaultRedisPrefix = "foreman"

	MaxConcurrency     = 10_000
	MaxHistoryLimit    = 10_000_000
	MaxOptions         = 1000
	MaxStepAttempts    = 100
	MaxStepDelayMs     = 24 * 60 * 60 * 1000
	MaxRedisDB         = 15
	MaxTimeout         = 365 * 24 * time.Hour
	MaxBackoffMultiple = 100.0
)

var (
	ErrInvalidAPIPort       = errors.New("invalid API port")
	ErrInvalidConcurrency   = errors.New("concurrency must be positive")
	ErrInvalidTimeout       = errors.New("timeout must be positive")
	ErrInvalidInterval      = errors.New("interval must be positive")
	ErrInvalidMaxOptions    = errors.New("max options must be positive")
	ErrInvalidHistoryLimit  = errors.New("history limit must be positive")
	ErrInvalidStepAttempts  = errors.New("step max attempts must be positive")
	ErrInvalidStepDelay     = errors.New("step initial delay cannot be negative")
	ErrInvalidBackoff       = errors.New("backoff multiplier must be >= 1")
	ErrInvalidRetention     = errors.New("retention must be positive")
	ErrInvalidThreshold     = errors.New("threshold must be positive")
	ErrInvalidEnvValue      = errors.New("invalid environment value")
	ErrEnvValueOutOfRange   = errors.New("environment value out of range")
	ErrMissingDefaultTarget = errors.New("default executor name is empty")
)

// NewDefaultConfig creates a configuration with the documented defaults
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",
		Tasks: TaskConfig{
			DefaultExecutor: DefaultExecutor,
			MaxConcurrent:   DefaultMaxConcurrentTasks,
			Timeout:         DefaultTaskTimeout,
			ProcessInterval: DefaultTaskProcessInterval,
			AutoAssign:      true,
		},
		Decision: DecisionConfig{
			MaxOptions:   DefaultDecisionMaxOptions,
			HistoryLimit: DefaultDecisionHistoryLimit,
			Timeout:      DefaultDecisionTimeout,
		},
		Workflow: WorkflowConfig{
			MaxConcurrent: DefaultMaxConcurrentWorkflows,
			Retry:         DefaultRetryPolicy(),
			ScriptTimeout: DefaultScriptTimeout,
			ArchiveURL:    "",
		},
		Monitor: MonitorConfig{
			MetricsInterval: DefaultMetricsInterval,
			HealthInterval:  DefaultHealthInterval,
			Retention:       DefaultRetention,
			AlertingEnabled: true,
			HealingEnabled:  true,
			Thresholds: Thresholds{
				CPUPercent:    DefaultCPUThreshold,
				MemoryPercent: DefaultMemoryThreshold,
				QueueDepth:    DefaultQueueDepthThreshold,
				FailureRate:   DefaultFailureRateThreshold,
			},
			Redis: RedisConfig{
				Prefix: DefaultRedisPrefix,
			},
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// DefaultRetryPolicy returns the step retry policy used when a step does
// not declare its own
func DefaultRetryPolicy() api.RetryPolicy {
	return api.RetryPolicy{
		MaxAttempts:       DefaultStepMaxAttempts,
		InitialDelayMs:    DefaultStepInitialDelayMs,
		BackoffMultiplier: DefaultStepBackoffMultiplier,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("DEFAULT_EXECUTOR", &c.Tasks.DefaultExecutor)
	loadEnvString("WORKFLOW_DIR", &c.Workflow.DefinitionDir)
	loadEnvString("TEMPLATE_DIR", &c.Workflow.TemplateDir)
	loadEnvString("ARCHIVE_URL", &c.Workflow.ArchiveURL)
	loadEnvString("METRICS_REDIS_ADDR", &c.Monitor.Redis.Addr)
	loadEnvString("METRICS_REDIS_PASSWORD", &c.Monitor.Redis.Password)
	loadEnvString("METRICS_REDIS_PREFIX", &c.Monitor.Redis.Prefix)

	return errors.Join(
		loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort),
		loadEnvBool("LOG_EXPORT", &c.Telemetry.Logs),
		loadEnvBool("METRICS_EXPORT", &c.Telemetry.Metrics),
		loadEnvBool("TRACE_EXPORT", &c.Telemetry.Traces),

		loadEnvInt(
			"MAX_CONCURRENT_TASKS", &c.Tasks.MaxConcurrent, 0, MaxConcurrency,
		),
		loadEnvDuration("TASK_TIMEOUT", &c.Tasks.Timeout, MaxTimeout),
		loadEnvBool("TASK_AUTO_ASSIGN", &c.Tasks.AutoAssign),
		loadEnvDuration(
			"TASK_PROCESS_INTERVAL", &c.Tasks.ProcessInterval, MaxTimeout,
		),

		loadEnvInt(
			"DECISION_MAX_OPTIONS", &c.Decision.MaxOptions, 0, MaxOptions,
		),
		loadEnvDuration("DECISION_TIMEOUT", &c.Decision.Timeout, MaxTimeout),
		loadEnvInt(
			"DECISION_HISTORY_LIMIT", &c.Decision.HistoryLimit,
			0, MaxHistoryLimit,
		),

		loadEnvInt(
			"MAX_CONCURRENT_WORKFLOWS", &c.Workflow.MaxConcurrent,
			0, MaxConcurrency,
		),
		loadEnvInt(
			"STEP_MAX_ATTEMPTS", &c.Workflow.Retry.MaxAttempts,
			0, MaxStepAttempts,
		),
		loadEnvInt(
			"STEP_INITIAL_DELAY", &c.Workflow.Retry.InitialDelayMs,
			-1, MaxStepDelayMs,
		),
		loadEnvFloat(
			"STEP_BACKOFF_MULTIPLIER", &c.Workflow.Retry.BackoffMultiplier,
			1, MaxBackoffMultiple,
		),
		loadEnvDuration(
			"SCRIPT_TIMEOUT", &c.Workflow.ScriptTimeout, MaxTimeout,
		),

		loadEnvDuration(
			"METRICS_INTERVAL", &c.Monitor.MetricsInterval, MaxTimeout,
		),
		loadEnvDuration(
			"HEALTH_INTERVAL", &c.Monitor.HealthInterval, MaxTimeout,
		),
		loadEnvDuration("METRICS_RETENTION", &c.Monitor.Retention, MaxTimeout),
		loadEnvBool("ALERTING_ENABLED", &c.Monitor.AlertingEnabled),
		loadEnvBool("HEALING_ENABLED", &c.Monitor.HealingEnabled),
		loadEnvFloat(
			"CPU_THRESHOLD", &c.Monitor.Thresholds.CPUPercent, 0, 100,
		),
		loadEnvFloat(
			"MEMORY_THRESHOLD", &c.Monitor.Thresholds.MemoryPercent, 0, 100,
		),
		loadEnvFloat(
			"QUEUE_DEPTH_THRESHOLD", &c.Monitor.Thresholds.QueueDepth,
			0, MaxHistoryLimit,
		),
		loadEnvFloat(
			"FAILURE_RATE_THRESHOLD", &c.Monitor.Thresholds.FailureRate,
			0, 1,
		),
		loadEnvInt("METRICS_REDIS_DB", &c.Monitor.Redis.DB, -1, MaxRedisDB),

		loadEnvDuration(
			"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, MaxTimeout,
		),
	)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if err := c.Tasks.Validate(); err != nil {
		return err
	}
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	if err := c.Workflow.Validate(); err != nil {
		return err
	}
	if err := c.Monitor.Validate(); err != nil {
		return err
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown", ErrInvalidTimeout)
	}
	return nil
}

// Validate checks the task scheduler settings
func (c *TaskConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: tasks", ErrInvalidConcurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: task", ErrInvalidTimeout)
	}
	if c.ProcessInterval <= 0 {
		return fmt.Errorf("%w: task processing", ErrInvalidInterval)
	}
	if c.AutoAssign && c.DefaultExecutor == "" {
		return ErrMissingDefaultTarget
	}
	return nil
}

// Validate checks the decision engine settings
func (c *DecisionConfig) Validate() error {
	if c.MaxOptions <= 0 {
		return ErrInvalidMaxOptions
	}
	if c.HistoryLimit <= 0 {
		return ErrInvalidHistoryLimit
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: decision", ErrInvalidTimeout)
	}
	return nil
}

// Validate checks the workflow engine settings
func (c *WorkflowConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: workflows", ErrInvalidConcurrency)
	}
	if c.Retry.MaxAttempts <= 0 {
		return ErrInvalidStepAttempts
	}
	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidStepDelay
	}
	if c.Retry.BackoffMultiplier < 1 {
		return ErrInvalidBackoff
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("%w: script", ErrInvalidTimeout)
	}
	return nil
}

// Validate checks the system monitor settings
func (c *MonitorConfig) Validate() error {
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("%w: metrics", ErrInvalidInterval)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("%w: health", ErrInvalidInterval)
	}
	if c.Retention <= 0 {
		return ErrInvalidRetention
	}
	t := c.Thresholds
	for name, v := range map[string]float64{
		"cpu":          t.CPUPercent,
		"memory":       t.MemoryPercent,
		"queue depth":  t.QueueDepth,
		"failure rate": t.FailureRate,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidThreshold, name)
		}
	}
	return nil
}

func loadEnvString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnvValue, key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("%w: %s=%d not in [%d, %d]",
			ErrEnvValueOutOfRange, key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func loadEnvFloat(key string, dst *float64, min, max float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnvValue, key, s)
	}
	if v < min || v > max {
		return fmt.Errorf("%w: %s=%g not in [%g, %g]",
			ErrEnvValueOutOfRange, key, v, min, max)
	}
	*dst = v
	return nil
}

// loadEnvDuration accepts Go durations ("1m30s") or plain milliseconds
func loadEnvDuration(key string, dst *time.Duration, max time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		ms, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidEnvValue, key, s)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d <= 0 || d > max {
		return fmt.Errorf("%w: %s=%s not in (0, %s]",
			ErrEnvValueOutOfRange, key, d, max)
	}
	*dst = d
	return nil
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnvValue, key, s)
	}
	*dst = v
	return nil
}
