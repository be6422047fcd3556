package scenebridge

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config for the bridge. Defaults can be loaded via envdecode.
type Config struct {
	// Addr the TCP listener binds. Loopback by default; the bridge carries
	// no authentication, so exposing it beyond localhost is on the
	// operator. ENV: SCENEBRIDGE_ADDR
	Addr string `env:"SCENEBRIDGE_ADDR,default=127.0.0.1:9876"`
	// QueueCapacity bounds the global command queue. Commands arriving at
	// capacity are rejected as busy. ENV: SCENEBRIDGE_QUEUE_CAPACITY
	QueueCapacity int `env:"SCENEBRIDGE_QUEUE_CAPACITY,default=1024"`
	// MaxBatch caps how many commands a single Tick resolves. ENV:
	// SCENEBRIDGE_MAX_BATCH
	MaxBatch int `env:"SCENEBRIDGE_MAX_BATCH,default=16"`
	// IdleTimeout closes connections with no inbound traffic. Zero
	// disables it. ENV: SCENEBRIDGE_IDLE_TIMEOUT
	IdleTimeout time.Duration `env:"SCENEBRIDGE_IDLE_TIMEOUT,default=5m"`
	// SlowCommandThreshold is the advisory watchdog: a handler running
	// longer than this is logged, not interrupted. ENV:
	// SCENEBRIDGE_SLOW_COMMAND_THRESHOLD
	SlowCommandThreshold time.Duration `env:"SCENEBRIDGE_SLOW_COMMAND_THRESHOLD,default=1s"`
	// TickInterval paces RunStandalone. Hosts with their own main loop
	// ignore it and call Tick directly. ENV: SCENEBRIDGE_TICK_INTERVAL
	TickInterval time.Duration `env:"SCENEBRIDGE_TICK_INTERVAL,default=100ms"`
}

// ConfigFromEnv populates a Config from the environment, falling back to the
// struct tag defaults.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode bridge config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("bridge config: addr must not be empty")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("bridge config: queue capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("bridge config: max batch must be positive, got %d", c.MaxBatch)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("bridge config: idle timeout must not be negative")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("bridge config: tick interval must be positive")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Addr:                 "127.0.0.1:9876",
		QueueCapacity:        1024,
		MaxBatch:             16,
		IdleTimeout:          5 * time.Minute,
		SlowCommandThreshold: time.Second,
		TickInterval:         100 * time.Millisecond,
	}
}
