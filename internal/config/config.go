package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/me/ossim/internal/proctable"
	"github.com/me/ossim/internal/scheduler"
	"github.com/me/ossim/internal/sink"
	"github.com/me/ossim/internal/worker"
	"github.com/me/ossim/pkg/model"
)

// ServerConfig holds configuration for the monitor server.
type ServerConfig struct {
	Addr      string // Listen address (default ":8090")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json, auto
	DBPath    string // SQLite database path (default ~/.ossim/ossim.db, ":memory:" for testing)
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8090",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// SimConfig holds every knob of a simulation run.
type SimConfig struct {
	TotalJobs        int             `yaml:"total_jobs" json:"total_jobs"`
	MaxConcurrent    int             `yaml:"max_concurrent" json:"max_concurrent"`
	MaxLifetime      time.Duration   `yaml:"max_lifetime" json:"max_lifetime"`
	AdmitInterval    time.Duration   `yaml:"admit_interval" json:"admit_interval"`
	TableSize        int             `yaml:"table_size" json:"table_size"`
	Quanta           []time.Duration `yaml:"quanta" json:"quanta"`
	RoundIncrement   time.Duration   `yaml:"round_increment" json:"round_increment"`
	IOWait           time.Duration   `yaml:"io_wait" json:"io_wait"`
	SnapshotInterval time.Duration   `yaml:"snapshot_interval" json:"snapshot_interval"`
	Timeout          time.Duration   `yaml:"timeout" json:"timeout"`
	Seed             int64           `yaml:"seed" json:"seed"`
	Policy           worker.Policy   `yaml:"policy" json:"policy"`
	LogMaxLines      int             `yaml:"log_max_lines" json:"log_max_lines"`
}

// DefaultSimConfig returns the stock five-job run.
func DefaultSimConfig() SimConfig {
	sc := scheduler.DefaultConfig()
	return SimConfig{
		TotalJobs:        sc.TotalJobs,
		MaxConcurrent:    sc.MaxConcurrent,
		MaxLifetime:      2 * time.Second,
		AdmitInterval:    sc.AdmitInterval,
		TableSize:        proctable.DefaultCapacity,
		Quanta:           sc.Quanta[:],
		RoundIncrement:   sc.RoundIncrement,
		IOWait:           sc.IOWait,
		SnapshotInterval: sc.SnapshotInterval,
		Timeout:          sc.Timeout,
		Policy:           worker.DefaultPolicy(),
		LogMaxLines:      sink.DefaultMaxLines,
	}
}

// Validate checks every field and reports all problems at once.
func (c SimConfig) Validate() error {
	var details []model.FieldError
	add := func(field, format string, args ...any) {
		details = append(details, model.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.TotalJobs < 1 {
		add("total_jobs", "must be at least 1, got %d", c.TotalJobs)
	}
	if c.TableSize < 1 {
		add("table_size", "must be at least 1, got %d", c.TableSize)
	}
	if c.MaxConcurrent < 1 || c.MaxConcurrent > c.TableSize {
		add("max_concurrent", "must be between 1 and table_size (%d), got %d", c.TableSize, c.MaxConcurrent)
	}
	if c.MaxLifetime <= 0 {
		add("max_lifetime", "must be positive")
	}
	if c.AdmitInterval < 0 {
		add("admit_interval", "must not be negative")
	}
	if c.RoundIncrement <= 0 {
		add("round_increment", "must be positive")
	}
	if c.IOWait < 0 {
		add("io_wait", "must not be negative")
	}
	if c.SnapshotInterval <= 0 {
		add("snapshot_interval", "must be positive")
	}
	if c.Timeout < 0 {
		add("timeout", "must not be negative")
	}
	if len(c.Quanta) != model.Levels {
		add("quanta", "expected %d levels, got %d", model.Levels, len(c.Quanta))
	} else {
		for i, q := range c.Quanta {
			if q <= 0 {
				add(fmt.Sprintf("quanta[%d]", i), "must be positive")
			} else if q > c.RoundIncrement {
				add(fmt.Sprintf("quanta[%d]", i), "%s exceeds round_increment %s", q, c.RoundIncrement)
			}
		}
	}
	if err := c.Policy.Validate(); err != nil {
		add("policy", "%v", err)
	}

	if len(details) > 0 {
		return model.NewValidationError("invalid simulation config", details...)
	}
	return nil
}

// Scheduler converts c into the scheduler's configuration.
func (c SimConfig) Scheduler() scheduler.Config {
	cfg := scheduler.Config{
		TotalJobs:        c.TotalJobs,
		MaxConcurrent:    c.MaxConcurrent,
		AdmitInterval:    c.AdmitInterval,
		RoundIncrement:   c.RoundIncrement,
		IOWait:           c.IOWait,
		SnapshotInterval: c.SnapshotInterval,
		Timeout:          c.Timeout,
	}
	copy(cfg.Quanta[:], c.Quanta)
	return cfg
}

// Launcher converts c into the worker launcher's configuration.
func (c SimConfig) Launcher() worker.LauncherConfig {
	return worker.LauncherConfig{
		Policy:      c.Policy,
		MaxLifetime: c.MaxLifetime,
		Seed:        c.Seed,
	}
}

// ResolveDBPath returns path, or ~/.ossim/ossim.db when path is empty,
// creating the parent directory.
func ResolveDBPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ossim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "ossim.db"), nil
}
