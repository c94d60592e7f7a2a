package retry

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/config"
)

// Policy encapsulates the queue retry cap and the delay before a failed item is eligible again.
// It is immutable after construction.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential
	Initial    time.Duration           // base delay; zero retries on the next cycle
	Max        time.Duration           // cap for growth
	MaxRetries int                     // retries after the first failure
}

// DefaultPolicy returns the queue default: 9 retries, no delay between attempts.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffFixed, Initial: 0, Max: 5 * time.Minute, MaxRetries: config.DefaultMaxRetries}
}

// NewPolicy builds a policy from raw config fields; invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial >= 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds the scheduler retry policy from validated configuration.
func FromConfig(s config.SchedulerConfig) Policy {
	initial, _ := time.ParseDuration(s.RetryInitialDelay)
	maxDelay, _ := time.ParseDuration(s.RetryMaxDelay)
	return NewPolicy(s.RetryBackoff, initial, maxDelay, s.MaxRetries)
}

// CanRetry reports whether an item that already failed retryCount times may be retried.
func (p Policy) CanRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// Delay returns the backoff delay for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 || p.Initial == 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		shift := retryCount - 1
		if shift > 30 {
			return p.Max
		}
		d := p.Initial * (1 << shift)
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// NotBefore returns the earliest time the retryCount-th retry may run.
func (p Policy) NotBefore(now time.Time, retryCount int) time.Time {
	return now.Add(p.Delay(retryCount))
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial < 0 {
		return fmt.Errorf("initial cannot be negative")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
