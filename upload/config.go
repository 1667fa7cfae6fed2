package upload

import (
	"fmt"
	"time"

	"github.com/photoshelf/go-uploadutils/upload/limiter"
	"github.com/photoshelf/go-uploadutils/upload/timeout"
)

const (
	// DefaultBaseTimeoutPerItem ...
	DefaultBaseTimeoutPerItem = 10 * time.Second
	// DefaultMinTotalTimeout ...
	DefaultMinTotalTimeout = 30 * time.Second
	// DefaultMaxTotalTimeout ...
	DefaultMaxTotalTimeout = 5 * time.Minute
)

// ProgressFunc receives the overall batch progress in percent.
// Values are strictly increasing, stay at or below 95 until every item
// settled, and 100 is delivered exactly once at the end of the batch.
type ProgressFunc func(percent int)

// Config controls a single batch run.
type Config struct {
	// Concurrency is the maximum number of uploads in flight. Ignored when
	// the engine was created with a shared limiter.
	Concurrency int
	// BaseTimeoutPerItem is clamped into [MinTotalTimeout, MaxTotalTimeout]
	// and applied to every item.
	BaseTimeoutPerItem time.Duration
	MinTotalTimeout    time.Duration
	MaxTotalTimeout    time.Duration
	// WeightBySize weights overall progress by payload size instead of item count.
	WeightBySize      bool
	OnOverallProgress ProgressFunc
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Concurrency:        limiter.DefaultConcurrency,
		BaseTimeoutPerItem: DefaultBaseTimeoutPerItem,
		MinTotalTimeout:    DefaultMinTotalTimeout,
		MaxTotalTimeout:    DefaultMaxTotalTimeout,
	}
}

// ItemTimeout returns the effective timeout applied to every item.
func (c Config) ItemTimeout() (time.Duration, error) {
	d, err := timeout.Clamp(c.BaseTimeoutPerItem, c.MinTotalTimeout, c.MaxTotalTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return d, nil
}

func (c Config) validate(sharedLimiter bool) error {
	if !sharedLimiter && c.Concurrency <= 0 {
		return fmt.Errorf("%w: %w (got %d)", ErrInvalidConfig, limiter.ErrInvalidConcurrency, c.Concurrency)
	}
	if c.BaseTimeoutPerItem <= 0 {
		return fmt.Errorf("%w: base timeout per item must be positive", ErrInvalidConfig)
	}
	if c.MinTotalTimeout <= 0 || c.MaxTotalTimeout <= 0 {
		return fmt.Errorf("%w: timeout bounds must be positive", ErrInvalidConfig)
	}
	if _, err := c.ItemTimeout(); err != nil {
		return err
	}
	return nil
}
