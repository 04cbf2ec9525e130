package room

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Config tunes scoring and the countdown.
type Config struct {
	PointsPerCorrect int           `yaml:"points_per_correct"`
	TimeSyncEvery    int           `yaml:"time_sync_every"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	UpdatesBuffer    int           `yaml:"updates_buffer"`
}

// DefaultConfig returns the stock room settings.
func DefaultConfig() Config {
	return Config{
		PointsPerCorrect: 100,
		TimeSyncEvery:    5,
		TickInterval:     time.Second,
		UpdatesBuffer:    64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PointsPerCorrect <= 0 {
		c.PointsPerCorrect = d.PointsPerCorrect
	}
	if c.TimeSyncEvery <= 0 {
		c.TimeSyncEvery = d.TimeSyncEvery
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.UpdatesBuffer <= 0 {
		c.UpdatesBuffer = d.UpdatesBuffer
	}
	return c
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock driving the countdown.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithLogger sets the coordinator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithConfig overrides the room settings. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg.withDefaults() }
}
