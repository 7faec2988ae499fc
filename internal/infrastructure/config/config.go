package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel configuration.
type Config struct {
	Kernel  KernelConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// KernelConfig holds object layer limits.
type KernelConfig struct {
	RootJobMaxHeight   uint32        `envconfig:"FIBER_ROOT_JOB_MAX_HEIGHT" default:"32"`
	MaxHandles         int           `envconfig:"FIBER_MAX_HANDLES" default:"262144"`
	MaxMessageBuffers  int           `envconfig:"FIBER_MAX_MESSAGE_BUFFERS" default:"65536"`
	MaxPendingMessages int           `envconfig:"FIBER_MAX_PENDING_MESSAGES" default:"3500"`
	MaxVMOSize         uint64        `envconfig:"FIBER_MAX_VMO_SIZE" default:"1073741824"`
	HandleWarnInterval time.Duration `envconfig:"FIBER_HIGH_HANDLE_WARN_INTERVAL" default:"1s"`
	TraceCapacity      int           `envconfig:"FIBER_TRACE_CAPACITY" default:"4096"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds the debug HTTP surface configuration.
type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Address string `envconfig:"METRICS_ADDR" default:"127.0.0.1:9464"`
	// AllowOrigins lists the CORS origins allowed to read the debug endpoints.
	AllowOrigins []string `envconfig:"METRICS_ALLOW_ORIGINS" default:"*"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			RootJobMaxHeight:   32,
			MaxHandles:         256 * 1024,
			MaxMessageBuffers:  65536,
			MaxPendingMessages: 3500,
			MaxVMOSize:         1 << 30,
			HandleWarnInterval: time.Second,
			TraceCapacity:      4096,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			Address:      "127.0.0.1:9464",
			AllowOrigins: []string{"*"},
		},
	}
}

// Validate checks limits the kernel cannot run with.
func (c *Config) Validate() error {
	k := c.Kernel
	switch {
	case k.MaxHandles <= 0 || k.MaxHandles > 256*1024:
		return fmt.Errorf("FIBER_MAX_HANDLES must be in (0, 262144], got %d", k.MaxHandles)
	case k.MaxMessageBuffers <= 0:
		return fmt.Errorf("FIBER_MAX_MESSAGE_BUFFERS must be positive, got %d", k.MaxMessageBuffers)
	case k.MaxPendingMessages <= 0:
		return fmt.Errorf("FIBER_MAX_PENDING_MESSAGES must be positive, got %d", k.MaxPendingMessages)
	case k.TraceCapacity < 0:
		return fmt.Errorf("FIBER_TRACE_CAPACITY must not be negative, got %d", k.TraceCapacity)
	case c.Metrics.Enabled && len(c.Metrics.AllowOrigins) == 0:
		return fmt.Errorf("METRICS_ALLOW_ORIGINS must not be empty")
	}
	return nil
}
