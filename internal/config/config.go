// Package config holds TaskForge's configuration knobs (spec.md §6). It
// mirrors the teacher's struct-of-structs/YAML convention
// (internal/config/config.go in theRebelliousNerd-codenerd): one nested
// struct per concern, a DefaultConfig constructor, and Load/Save helpers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SchedulingAlgorithm selects how the scheduler orders its queue.
type SchedulingAlgorithm string

const (
	AlgorithmPriorityFirst     SchedulingAlgorithm = "priorityFirst"
	AlgorithmEarliestDeadline  SchedulingAlgorithm = "earliestDeadline"
	AlgorithmShortestJob       SchedulingAlgorithm = "shortestJob"
	AlgorithmResourceBalanced  SchedulingAlgorithm = "resourceBalanced"
	AlgorithmHybridOptimal     SchedulingAlgorithm = "hybridOptimal"
)

// ResourceConstraints bounds the engine's total resource envelope.
type ResourceConstraints struct {
	MaxMemoryMB        float64 `yaml:"maxMemoryMB"`
	MaxCPUWeight       float64 `yaml:"maxCpuWeight"`
	MaxConcurrentTasks int     `yaml:"maxConcurrentTasks"`
	ReservedMemoryMB   float64 `yaml:"reservedMemoryMB"`
	ReservedCPUWeight  float64 `yaml:"reservedCpuWeight"`
}

// SchedulingConfig configures the Task Execution Engine's scheduler.
type SchedulingConfig struct {
	Algorithm           SchedulingAlgorithm `yaml:"algorithm"`
	BatchSize           int                 `yaml:"batchSize"`
	SchedulingInterval  time.Duration       `yaml:"schedulingInterval"`
	ResourceConstraints ResourceConstraints `yaml:"resourceConstraints"`
}

// WatchdogConfig configures per-execution timeout/warning monitoring.
type WatchdogConfig struct {
	Enabled                bool          `yaml:"enabled"`
	DefaultTimeout         time.Duration `yaml:"defaultTimeout"`
	WarningThreshold       time.Duration `yaml:"warningThreshold"`
	HealthCheckInterval    time.Duration `yaml:"healthCheckInterval"`
	MaxRetries             int           `yaml:"maxRetries"`
	StaleAgentThreshold    time.Duration `yaml:"staleAgentThreshold"`
	HeartbeatSweepInterval time.Duration `yaml:"heartbeatSweepInterval"`
}

// ExecutionConfig bounds concurrent executions and their wall-clock budget.
type ExecutionConfig struct {
	MaxConcurrentExecutions int           `yaml:"maxConcurrentExecutions"`
	ExecutionTimeout        time.Duration `yaml:"executionTimeout"`
}

// CacheConfig configures the Storage Engine's in-memory cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSize    int  `yaml:"maxSize"`
	TTLSeconds int  `yaml:"ttlSeconds"`
}

// BackupConfig configures the periodic snapshot job.
type BackupConfig struct {
	Enabled        bool `yaml:"enabled"`
	IntervalMinutes int `yaml:"intervalMinutes"`
	MaxBackups     int  `yaml:"maxBackups"`
}

// AuditConfig configures the Security Gate's audit ring.
type AuditConfig struct {
	RetentionDays int `yaml:"retentionDays"`
}

// SecurityConfig configures the Security Gate's path policy.
type SecurityConfig struct {
	AllowedReadPaths  []string `yaml:"allowedReadPaths"`
	AllowedWritePaths []string `yaml:"allowedWritePaths"`
	AllowedExtensions []string `yaml:"allowedExtensions,omitempty"`
	MaxStringLength   int      `yaml:"maxStringLength"`
}

// LocksConfig configures advisory lock duration and cleanup cadence.
type LocksConfig struct {
	MaxLockDuration time.Duration `yaml:"maxLockDuration"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// LoggingConfig gates the category logger (SPEC_FULL.md §10.1).
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"jsonFormat"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// Config is the root configuration object for a TaskForge engine instance.
type Config struct {
	DataRoot   string           `yaml:"dataRoot"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Cache      CacheConfig      `yaml:"cache"`
	Backup     BackupConfig     `yaml:"backup"`
	Audit      AuditConfig      `yaml:"audit"`
	Security   SecurityConfig   `yaml:"security"`
	Locks      LocksConfig      `yaml:"locks"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DefaultConfig reproduces the defaults listed in spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		DataRoot: "./data",
		Scheduling: SchedulingConfig{
			Algorithm:          AlgorithmHybridOptimal,
			BatchSize:          10,
			SchedulingInterval: 5 * time.Second,
			ResourceConstraints: ResourceConstraints{
				MaxMemoryMB:        8192,
				MaxCPUWeight:       16,
				MaxConcurrentTasks: 50,
				ReservedMemoryMB:   1024,
				ReservedCPUWeight:  2,
			},
		},
		Watchdog: WatchdogConfig{
			Enabled:                true,
			DefaultTimeout:         30 * time.Minute,
			WarningThreshold:       25 * time.Minute,
			HealthCheckInterval:    time.Minute,
			MaxRetries:             3,
			StaleAgentThreshold:    2 * time.Minute,
			HeartbeatSweepInterval: 30 * time.Second,
		},
		Execution: ExecutionConfig{
			MaxConcurrentExecutions: 20,
			ExecutionTimeout:        3600 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    1000,
			TTLSeconds: 3600,
		},
		Backup: BackupConfig{
			Enabled:         true,
			IntervalMinutes: 60,
			MaxBackups:      10,
		},
		Audit: AuditConfig{
			RetentionDays: 30,
		},
		Security: SecurityConfig{
			MaxStringLength: 10000,
		},
		Locks: LocksConfig{
			MaxLockDuration: 300 * time.Second,
			CleanupInterval: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file, applying it on top of DefaultConfig so
// partial files only override what they specify.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Clone returns a deep-enough copy for safe hand-off across goroutines
// (slices are copied; nested structs are value types already).
func (c *Config) Clone() *Config {
	clone := *c
	clone.Security.AllowedReadPaths = append([]string(nil), c.Security.AllowedReadPaths...)
	clone.Security.AllowedWritePaths = append([]string(nil), c.Security.AllowedWritePaths...)
	clone.Security.AllowedExtensions = append([]string(nil), c.Security.AllowedExtensions...)
	return &clone
}
