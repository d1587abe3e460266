// Package config loads orchestrator configuration in layers: compiled
// defaults, then an optional YAML file, then the site env file, then
// MINSAR_* environment variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/geodesymiami/minsar-sub000/internal/walltime"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Duration decodes "90s" / "5m" style YAML values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the standard-library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every tunable of one orchestration run.
type Config struct {
	// WorkDir is the run-files directory; usually supplied per invocation
	// on the command line rather than here.
	WorkDir string `yaml:"work_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Queue is the partition for scripts that carry no -p directive.
	Queue string `yaml:"queue"`

	// EnvFile is a site env file loaded into the process environment
	// before MINSAR_* overrides are read.
	EnvFile string `yaml:"env_file"`

	Limits model.ResourceLimits `yaml:"limits"`

	PollInterval  Duration `yaml:"poll_interval"`
	RetryInterval Duration `yaml:"retry_interval"`
	Randomize     bool     `yaml:"randomize"`

	// WalltimeFactor scales a timed-out job's walltime on resubmission.
	WalltimeFactor float64 `yaml:"walltime_factor"`
	// QueueCeilings caps escalation per queue, in sbatch time syntax.
	QueueCeilings map[string]string `yaml:"queue_ceilings"`
	// DefaultCeiling applies to queues without an entry. Empty means no cap.
	DefaultCeiling string `yaml:"default_ceiling"`

	// HookCommand is the post-group output checker. Empty disables it.
	HookCommand string `yaml:"hook_command"`

	// HistoryDB is the run-history SQLite path. Empty disables history.
	HistoryDB string `yaml:"history_db"`
	// StatusAddr serves the read-only status API when set (e.g. ":8642").
	StatusAddr string `yaml:"status_addr"`

	SbatchBin string `yaml:"sbatch_bin"`
	SacctBin  string `yaml:"sacct_bin"`
	SqueueBin string `yaml:"squeue_bin"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Limits: model.ResourceLimits{
			MaxJobsPerQueue: 25,
			MaxTasksPerStep: 1500,
			MaxTotalTasks:   3000,
		},
		PollInterval:   Duration(60 * time.Second),
		RetryInterval:  Duration(60 * time.Second),
		WalltimeFactor: 1.5,
		SbatchBin:      "sbatch",
		SacctBin:       "sacct",
		SqueueBin:      "squeue",
	}
}

// Load builds the effective configuration. path names an optional YAML
// file and envFile an optional site env file; either may be empty. A
// non-empty envFile argument replaces the one named in the YAML file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if envFile != "" {
		cfg.EnvFile = envFile
	}

	// The env file populates the environment without clobbering variables
	// set by the caller, so real environment always wins.
	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil {
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.WalltimeFactor <= 1 {
		return fmt.Errorf("walltime_factor must be greater than 1, got %v", c.WalltimeFactor)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry_interval must be positive")
	}
	if _, err := c.WalltimePolicy(); err != nil {
		return err
	}
	return nil
}

// WalltimePolicy parses the ceiling expressions into the escalation
// policy used on resubmission.
func (c Config) WalltimePolicy() (walltime.Policy, error) {
	p := walltime.Policy{
		Factor:   c.WalltimeFactor,
		Ceilings: make(map[string]time.Duration, len(c.QueueCeilings)),
	}
	for queue, expr := range c.QueueCeilings {
		d, err := walltime.Parse(expr)
		if err != nil {
			return walltime.Policy{}, fmt.Errorf("queue_ceilings[%s]: %w", queue, err)
		}
		p.Ceilings[queue] = d
	}
	if c.DefaultCeiling != "" {
		d, err := walltime.Parse(c.DefaultCeiling)
		if err != nil {
			return walltime.Policy{}, fmt.Errorf("default_ceiling: %w", err)
		}
		p.DefaultCeiling = d
	}
	return p, nil
}

// applyEnv overrides cfg fields from MINSAR_* variables.
func applyEnv(cfg *Config) {
	setString("MINSAR_LOG_LEVEL", &cfg.LogLevel)
	setString("MINSAR_LOG_FORMAT", &cfg.LogFormat)
	setString("MINSAR_QUEUE", &cfg.Queue)
	setString("MINSAR_HOOK_COMMAND", &cfg.HookCommand)
	setString("MINSAR_HISTORY_DB", &cfg.HistoryDB)
	setString("MINSAR_STATUS_ADDR", &cfg.StatusAddr)
	setString("MINSAR_SBATCH_BIN", &cfg.SbatchBin)
	setString("MINSAR_SACCT_BIN", &cfg.SacctBin)
	setString("MINSAR_SQUEUE_BIN", &cfg.SqueueBin)
	setString("MINSAR_DEFAULT_CEILING", &cfg.DefaultCeiling)

	setInt("MINSAR_MAX_JOBS_PER_QUEUE", &cfg.Limits.MaxJobsPerQueue)
	setInt("MINSAR_MAX_TASKS_PER_STEP", &cfg.Limits.MaxTasksPerStep)
	setInt("MINSAR_MAX_TOTAL_TASKS", &cfg.Limits.MaxTotalTasks)

	setDuration("MINSAR_POLL_INTERVAL", &cfg.PollInterval)
	setDuration("MINSAR_RETRY_INTERVAL", &cfg.RetryInterval)

	setBool("MINSAR_RANDOMIZE", &cfg.Randomize)
	setFloat("MINSAR_WALLTIME_FACTOR", &cfg.WalltimeFactor)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
