package config

import (
	"errors"
	"time"
)

// GCConfig defines the parameters for the background active expiration
type GCConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`          // how often to run the background check
	SamplesPerCheck int           `mapstructure:"samples_per_check"` // how many keys to check per shard
	MatchThreshold  float64       `mapstructure:"match_threshold"`   // 0.0-1.0. if expired/scanned > threshold, repeat immediately
}

func DefaultGCConfig() GCConfig {
	return GCConfig{
		Enabled:         true,
		Interval:        100 * time.Millisecond,
		SamplesPerCheck: 20,
		MatchThreshold:  0.25,
	}
}

// Validate checks the sampling parameters. A disabled collector is always valid
func (g GCConfig) Validate() error {
	if !g.Enabled {
		return nil
	}

	var errs []error
	if g.Interval <= 0 {
		errs = append(errs, errors.New("gc.interval must be positive"))
	}
	if g.SamplesPerCheck <= 0 {
		errs = append(errs, errors.New("gc.samples_per_check must be positive"))
	}
	if g.MatchThreshold <= 0 || g.MatchThreshold > 1 {
		errs = append(errs, errors.New("gc.match_threshold must be in (0, 1]"))
	}
	return errors.Join(errs...)
}
