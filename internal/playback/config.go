package playback

import (
	"errors"
	"time"
)

// Config holds the controller timings.
type Config struct {
	// SafetyTimeout bounds how long a slot may go without a terminal signal.
	SafetyTimeout time.Duration
	// ReadyTimeout is how long to wait for a clip before playing it anyway.
	// Zero disables the forced play.
	ReadyTimeout time.Duration
	// AdvanceDelay is the pause between a clip ending and the next starting.
	AdvanceDelay time.Duration
	// ErrorDelay is the pause before skipping a failed clip.
	ErrorDelay time.Duration
	// MaxConsecutiveFailures stops a sequence after that many failed slots
	// in a row. Zero never stops.
	MaxConsecutiveFailures int
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		SafetyTimeout: 100 * time.Second,
		ReadyTimeout:  2 * time.Second,
		AdvanceDelay:  500 * time.Millisecond,
		ErrorDelay:    100 * time.Millisecond,
		EventBuffer:   64,
	}
}

// Validate checks the config for impossible values.
func (c Config) Validate() error {
	switch {
	case c.SafetyTimeout <= 0:
		return errors.New("safety timeout must be positive")
	case c.ReadyTimeout < 0, c.AdvanceDelay < 0, c.ErrorDelay < 0:
		return errors.New("delays must not be negative")
	case c.ReadyTimeout >= c.SafetyTimeout:
		return errors.New("ready timeout must be shorter than the safety timeout")
	case c.MaxConsecutiveFailures < 0:
		return errors.New("max consecutive failures must not be negative")
	case c.EventBuffer < 0:
		return errors.New("event buffer must not be negative")
	}
	return nil
}
