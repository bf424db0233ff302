package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "SLOTSTRESS"

var (
	ErrInvalidDuration        = errors.New("duration must be positive")
	ErrInvalidWorkers         = errors.New("workers must be at least 1")
	ErrInvalidInitialSlots    = errors.New("initial slots must not be negative")
	ErrInvalidCompactInterval = errors.New("compact interval must not be negative")
)

// Config controls a stress run. Every field can be set from a SLOTSTRESS_*
// environment variable and overridden by the matching flag.
type Config struct {
	Duration        time.Duration `envconfig:"DURATION" default:"10s"`
	Workers         int           `envconfig:"WORKERS" default:"4"`
	InitialSlots    int           `envconfig:"INITIAL_SLOTS" default:"10000"`
	CompactInterval time.Duration `envconfig:"COMPACT_INTERVAL" default:"250ms"` // 0 disables compaction
	MetricsAddr     string        `envconfig:"METRICS_ADDR"`                     // empty disables the endpoint
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"console"`
	GCPauseMetrics  bool          `envconfig:"GC_PAUSE_METRICS" default:"false"`
}

// LoadConfig reads envFile, if it exists, into the environment and then
// processes SLOTSTRESS_* variables. Variables already set take precedence
// over the file.
func LoadConfig(envFile string) (Config, error) {
	var cfg Config
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// BindFlags registers one flag per field, defaulting to the current value.
func (c *Config) BindFlags(flags *flag.FlagSet) {
	flags.DurationVar(&c.Duration, "duration", c.Duration, "The total duration the test should run for.")
	flags.IntVar(&c.Workers, "workers", c.Workers, "Number of concurrent alloc/free/read workers.")
	flags.IntVar(&c.InitialSlots, "slots", c.InitialSlots, "The initial number of slots to allocate.")
	flags.DurationVar(&c.CompactInterval, "compact-interval", c.CompactInterval, "How often to compact the store; 0 disables compaction.")
	flags.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "Address to serve Prometheus metrics on; empty disables it.")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error.")
	flags.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: json or console.")
	flags.BoolVar(&c.GCPauseMetrics, "gc-pause-metrics", c.GCPauseMetrics, "Enable detailed GC pause metrics in the report.")
}

func (c Config) Validate() error {
	switch {
	case c.Duration <= 0:
		return fmt.Errorf("%w: %s", ErrInvalidDuration, c.Duration)
	case c.Workers < 1:
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	case c.InitialSlots < 0:
		return fmt.Errorf("%w: %d", ErrInvalidInitialSlots, c.InitialSlots)
	case c.CompactInterval < 0:
		return fmt.Errorf("%w: %s", ErrInvalidCompactInterval, c.CompactInterval)
	}
	return nil
}
