package resilience

import (
	"fmt"
	"time"
)

// RetryPolicy configures how an operation is retried.
// A policy is a value; share it freely between invocations.
type RetryPolicy struct {
	MaxAttempts       int           // total attempts, >= 1
	InitialDelay      time.Duration // wait before the second attempt, >= 0
	BackoffMultiplier float64       // applied to the delay after each wait, >= 1
	OperationTimeout  time.Duration // per-attempt deadline; 0 disables it
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		OperationTimeout:  30 * time.Second,
	}
}

// Validate reports whether the policy is usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0, got %v", p.InitialDelay)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", p.BackoffMultiplier)
	}
	if p.OperationTimeout < 0 {
		return fmt.Errorf("operation_timeout must be >= 0, got %v", p.OperationTimeout)
	}
	return nil
}

// Delays returns the waits that precede attempts 2..MaxAttempts.
// The i-th wait is InitialDelay * BackoffMultiplier^(i-1).
func (p RetryPolicy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	delay := float64(p.InitialDelay)
	for i := 1; i < p.MaxAttempts; i++ {
		delays = append(delays, time.Duration(delay))
		delay *= p.BackoffMultiplier
	}
	return delays
}
