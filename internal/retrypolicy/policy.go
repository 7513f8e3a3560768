// Package retrypolicy encapsulates retry/backoff settings for transient
// failures in stage runners and adapters.
package retrypolicy

import (
	"fmt"
	"math/rand"
	"time"
)

// BackoffMode selects how the delay grows between attempts.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffLinear      BackoffMode = "linear"
	BackoffExponential BackoffMode = "exponential"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       BackoffMode   // fixed|linear|exponential
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // maximum retry attempts after the first failure
	Jitter     float64       // fractional jitter, e.g. 0.25 for +/-25%
}

// DefaultPolicy returns the adapter-call default (exponential, 500ms initial,
// 30s cap, 2 retries, +/-25% jitter).
func DefaultPolicy() Policy {
	return Policy{
		Mode:       BackoffExponential,
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		MaxRetries: 2,
		Jitter:     0.25,
	}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(mode BackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	if mode != "" {
		switch mode {
		case BackoffFixed, BackoffLinear, BackoffExponential:
			p.Mode = mode
		default:
			// unknown -> keep default
		}
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff delay for the given retry attempt number (1-based:
// first retry => 1). Jitter is applied symmetrically around the computed delay.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case BackoffFixed:
		d = p.Initial
	case BackoffLinear:
		d = time.Duration(retryCount) * p.Initial
	default: // exponential
		d = p.Initial * (1 << (retryCount - 1))
	}
	if d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		// Random in [-jitter, +jitter] of the base delay.
		f := 1 + (rand.Float64()*2-1)*p.Jitter
		d = time.Duration(float64(d) * f)
	}
	return d
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0,1)")
	}
	return nil
}
