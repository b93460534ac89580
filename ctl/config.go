package ctl

import (
	"fmt"
	"os"
)

// Environment variables recognized by ConfigFromEnv. Setting one (to any
// non-empty value) activates the corresponding toggle. They are read once at
// construction time and never re-polled per iteration; toggling mid-run has no
// effect until the controller is re-created.
const (
	// EnvDisableControl skips the entire decision engine per Step call,
	// removing the overhead of calculations. No system changes are made.
	EnvDisableControl = "STATETUNE_DISABLE_CONTROL"
	// EnvDisableApply runs all calculations but suppresses the actuation
	// call. Useful for dry-run measurement.
	EnvDisableApply = "STATETUNE_DISABLE_APPLY"
	// EnvDisableIdle forces idle-state resolution to a no-op passthrough.
	EnvDisableIdle = "STATETUNE_DISABLE_IDLE"
)

// Defaults applied by New for zero-valued optional fields.
const (
	DefaultBufferDepth   = 16
	DefaultIdleThreshold = 0.10
	DefaultEWMAAlpha     = 0.3
)

// Config groups controller parameters for New.
type Config struct {
	Period      uint32 // iterations between decisions (must be > 0)
	BufferDepth uint32 // observation window size and trace flush depth (default 16; must be > 0 when a trace log is attached)

	DisableControl bool // skip the decision engine entirely
	DisableApply   bool // run the engine but suppress actuation
	DisableIdle    bool // idle resolution becomes a passthrough

	IdleThreshold *float64      // idle fraction above which idle variants are preferred (nil = 0.10; 0 substitutes on any observed idle)
	Smoothing     SmoothingKind // "mean" (default) or "ewma"
	EWMAAlpha     float64       // weight of the newest sample when Smoothing is "ewma" (default 0.3)
}

// ConfigFromEnv returns a Config with the disable toggles taken from the
// process environment. All other fields are zero and must be filled by the
// caller before New.
func ConfigFromEnv() Config {
	return Config{
		DisableControl: os.Getenv(EnvDisableControl) != "",
		DisableApply:   os.Getenv(EnvDisableApply) != "",
		DisableIdle:    os.Getenv(EnvDisableIdle) != "",
	}
}

// withDefaults fills zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.BufferDepth == 0 {
		c.BufferDepth = DefaultBufferDepth
	}
	if c.IdleThreshold == nil {
		threshold := DefaultIdleThreshold
		c.IdleThreshold = &threshold
	}
	if c.Smoothing == "" {
		c.Smoothing = SmoothingMean
	}
	if c.Smoothing == SmoothingEWMA && c.EWMAAlpha == 0 {
		c.EWMAAlpha = DefaultEWMAAlpha
	}
	return c
}

// validate checks preconditions on the already-defaulted config.
func (c Config) validate() error {
	if c.Period == 0 {
		return fmt.Errorf("period must be > 0")
	}
	if !IsValidSmoothingKind(c.Smoothing) {
		return fmt.Errorf("unknown smoothing kind %q", c.Smoothing)
	}
	if c.IdleThreshold != nil && *c.IdleThreshold < 0 {
		return fmt.Errorf("idle threshold must be >= 0, got %g", *c.IdleThreshold)
	}
	return nil
}
