package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dev.mobile.governor/internal/cache"
	"dev.mobile.governor/internal/coordinator"
	"dev.mobile.governor/internal/lifecycle"
)

// Config is the governor's full configuration tree. Components keep their
// own config structs; this package only assembles, loads, and overrides
// them.
type Config struct {
	Server      ServerConfig               `yaml:"server"`
	LogLevel    string                     `yaml:"log_level"`
	Cache       *cache.StoreConfig         `yaml:"cache"`
	Mirror      MirrorConfig               `yaml:"mirror"`
	Coordinator *coordinator.Config        `yaml:"coordinator"`
	Scheduler   *lifecycle.SchedulerConfig `yaml:"scheduler"`
	Pressure    PressureConfig             `yaml:"pressure"`
	Janitor     JanitorConfig              `yaml:"janitor"`
	Shrink      ShrinkConfig               `yaml:"shrink"`
}

// ServerConfig configures the governord debug/ops HTTP surface.
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // gin mode: "debug" or "release"
}

// MirrorConfig selects the optional durable mirror backend.
type MirrorConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Redis   cache.RedisMirrorConfig `yaml:"redis"`
}

// PressureConfig selects the pressure source implementation.
type PressureConfig struct {
	// Source is "system" (gopsutil virtual memory) or "heap" (process
	// heap against a fixed budget).
	Source string `yaml:"source"`
	// HeapBudgetBytes is the 100%-pressure heap size for the heap source.
	HeapBudgetBytes uint64 `yaml:"heap_budget_bytes"`
}

// JanitorConfig paces the cache janitor task.
type JanitorConfig struct {
	BaseInterval time.Duration `yaml:"base_interval"`
}

// ShrinkConfig controls the cache's reaction to critical pressure.
type ShrinkConfig struct {
	// Ratio of configured capacity the cache shrinks to while pressure
	// is critical.
	Ratio float64 `yaml:"ratio"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Server:      ServerConfig{Port: "8090", Mode: "release"},
		LogLevel:    "info",
		Cache:       cache.DefaultStoreConfig(),
		Mirror:      MirrorConfig{Redis: cache.RedisMirrorConfig{Addr: "localhost:6379"}},
		Coordinator: coordinator.DefaultConfig(),
		Scheduler:   lifecycle.DefaultSchedulerConfig(),
		Pressure:    PressureConfig{Source: "system", HeapBudgetBytes: 256 << 20},
		Janitor:     JanitorConfig{BaseInterval: time.Minute},
		Shrink:      ShrinkConfig{Ratio: 0.5},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GOVERNOR_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("GOVERNOR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GOVERNOR_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Cache.Capacity = n
		}
	}
	if v := os.Getenv("GOVERNOR_MIRROR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Mirror.Enabled = b
		}
	}
	if v := os.Getenv("GOVERNOR_REDIS_ADDR"); v != "" {
		c.Mirror.Redis.Addr = v
	}
	if v := os.Getenv("GOVERNOR_REDIS_PASSWORD"); v != "" {
		c.Mirror.Redis.Password = v
	}
	if v := os.Getenv("GOVERNOR_PRESSURE_SOURCE"); v != "" {
		c.Pressure.Source = v
	}
	if v := os.Getenv("GOVERNOR_JANITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Janitor.BaseInterval = d
		}
	}
}

func (c *Config) validate() error {
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("config: cache capacity must be positive")
	}
	if c.Shrink.Ratio <= 0 || c.Shrink.Ratio > 1 {
		return fmt.Errorf("config: shrink ratio must be in (0, 1]")
	}
	if c.Scheduler.LowThreshold >= c.Scheduler.HighThreshold {
		return fmt.Errorf("config: pressure low threshold must be below high threshold")
	}
	switch c.Pressure.Source {
	case "system", "heap":
	default:
		return fmt.Errorf("config: unknown pressure source %q", c.Pressure.Source)
	}
	return nil
}
