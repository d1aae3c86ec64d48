package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// RetryPolicy is the delay/attempt budget of one deferred send.
type RetryPolicy struct {
	Delay    time.Duration
	Attempts int
	Spacing  time.Duration
}

// Config defines radio delivery reliability defaults.
type Config struct {
	AckTimeout      time.Duration
	ConnectAttempts int
	Backoff         BackoffConfig

	// Ack is the budget for deferred /ack sends after a received note.
	Ack RetryPolicy
	// Followup is the budget for deferred metadata sends (/pin, /author, /color).
	Followup RetryPolicy
}

// DefaultConfig returns the defaults deployed boards run with.
func DefaultConfig() Config {
	return Config{
		AckTimeout:      30 * time.Second,
		ConnectAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     8 * time.Second,
			Jitter:       true,
		},
		Ack: RetryPolicy{
			Delay:    60 * time.Second,
			Attempts: 3,
			Spacing:  10 * time.Second,
		},
		Followup: RetryPolicy{
			Delay:    15 * time.Second,
			Attempts: 3,
			Spacing:  10 * time.Second,
		},
	}
}
