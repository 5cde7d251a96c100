package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
	HTTP      HTTPConfig
	Log       LogConfig
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name string
	Env  string // development | production
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string // file path, or ":memory:"
}

// SchedulerConfig holds the task cadences. All cadences are evaluated
// in Timezone; the accrual date boundary follows it too.
type SchedulerConfig struct {
	Timezone         string
	InterestEveryHrs int
	OverdueSweepAt   string // HH:MM
	QueueEveryMins   int
}

// NotifyConfig bounds the queue worker.
type NotifyConfig struct {
	BatchSize   int
	MaxAttempts int
}

// HTTPConfig holds the ops server settings.
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration from the given file (optional) with
// environment-variable overrides (LOANENGINE_ prefix, dots as
// underscores) on top of the built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LOANENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "loan-engine")
	v.SetDefault("app.env", "development")

	v.SetDefault("database.path", "loans.db")

	v.SetDefault("scheduler.timezone", "Asia/Kolkata")
	v.SetDefault("scheduler.interesteveryhrs", 4)
	v.SetDefault("scheduler.overduesweepat", "02:30")
	v.SetDefault("scheduler.queueeverymins", 1)

	v.SetDefault("notify.batchsize", 50)
	v.SetDefault("notify.maxattempts", 5)

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", 15*time.Second)
	v.SetDefault("http.writetimeout", 15*time.Second)
	v.SetDefault("http.idletimeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

func (c *Config) validate() error {
	if c.Scheduler.InterestEveryHrs < 1 {
		return fmt.Errorf("scheduler.interesteveryhrs must be >= 1, got %d", c.Scheduler.InterestEveryHrs)
	}
	if c.Scheduler.QueueEveryMins < 1 {
		return fmt.Errorf("scheduler.queueeverymins must be >= 1, got %d", c.Scheduler.QueueEveryMins)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.maxattempts must be >= 1, got %d", c.Notify.MaxAttempts)
	}
	return nil
}
