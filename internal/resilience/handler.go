package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vtuber/internal/logging"
)

// ErrAttemptTimeout marks an attempt that breached RetryPolicy.OperationTimeout.
var ErrAttemptTimeout = errors.New("operation timed out")

// Operation is a unit of work that may fail. It must honor ctx.
type Operation[T any] func(ctx context.Context) (T, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Result is the explicit outcome of Execute.
type Result[T any] struct {
	Value        T
	Attempts     int   // attempts of the operation, fallback excluded
	UsedFallback bool  // Value came from the fallback
	LastErr      error // last operation error, kept even when the fallback succeeded
	Err          error // nil on success; otherwise a *Failure
}

// OK reports whether a value was produced (directly or via fallback).
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unwrap returns the value and error in conventional Go form.
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// Handler executes operations with retries and keeps per-kind failure counters.
// One Handler is constructed at startup and passed to every component.
type Handler struct {
	mu       sync.Mutex
	policy   RetryPolicy
	counts   map[ErrorKind]int
	timeouts map[ErrorKind]int
	sleep    Sleeper
}

// Option configures a Handler.
type Option func(*Handler)

// WithPolicy sets the default policy used by Run and exposed by Policy.
func WithPolicy(p RetryPolicy) Option {
	return func(h *Handler) { h.policy = p }
}

// WithSleeper replaces the inter-attempt wait. Tests use it to record delays.
func WithSleeper(s Sleeper) Option {
	return func(h *Handler) {
		if s != nil {
			h.sleep = s
		}
	}
}

// NewHandler creates a Handler with DefaultRetryPolicy unless overridden.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		policy:   DefaultRetryPolicy(),
		counts:   make(map[ErrorKind]int),
		timeouts: make(map[ErrorKind]int),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Policy returns the handler's default policy.
func (h *Handler) Policy() RetryPolicy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.policy
}

// Stats returns a copy of the failure counters. Absent kinds count as zero.
func (h *Handler) Stats() map[ErrorKind]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[ErrorKind]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// TimeoutStats returns a copy of the counters of attempts that breached
// their deadline. These are also included in Stats.
func (h *Handler) TimeoutStats() map[ErrorKind]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[ErrorKind]int, len(h.timeouts))
	for k, v := range h.timeouts {
		out[k] = v
	}
	return out
}

// ResetStats clears every counter.
func (h *Handler) ResetStats() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts = make(map[ErrorKind]int)
	h.timeouts = make(map[ErrorKind]int)
	logging.ErrorsDebug("error statistics reset")
}

func (h *Handler) recordFailure(kind ErrorKind, timedOut bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[kind]++
	if timedOut {
		h.timeouts[kind]++
	}
}

func (h *Handler) recordSuccess(kind ErrorKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.counts, kind)
	delete(h.timeouts, kind)
}

// Run executes op under the default policy with no fallback.
func (h *Handler) Run(ctx context.Context, kind ErrorKind, op func(ctx context.Context) error) error {
	res := Execute(ctx, h, kind, h.Policy(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, nil)
	return res.Err
}

// Execute attempts op up to policy.MaxAttempts times, sleeping between
// attempts with exponential backoff. Every failed attempt increments the
// counter for kind; a success clears it. When all attempts fail, fallback
// (if non-nil) is invoked exactly once and its outcome is final.
//
// Cancellation of ctx aborts the in-flight attempt and skips both the
// remaining attempts and the fallback. It is not counted as a failure.
func Execute[T any](ctx context.Context, h *Handler, kind ErrorKind, policy RetryPolicy, op Operation[T], fallback Operation[T]) Result[T] {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffMultiplier < 1 {
		policy.BackoffMultiplier = 1
	}

	var res Result[T]
	var lastTimedOut bool
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = &Failure{Kind: kind, Attempts: res.Attempts, Cancelled: true, Err: err}
			return res
		}
		res.Attempts = attempt

		value, timedOut, err := runAttempt(ctx, policy.OperationTimeout, op)
		if err == nil {
			if attempt > 1 {
				logging.Errors("retry successful on attempt %d for %s", attempt, kind)
			}
			h.recordSuccess(kind)
			res.Value = value
			res.LastErr = nil
			return res
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			logging.ErrorsWarn("%s cancelled during attempt %d/%d: %v", kind, attempt, policy.MaxAttempts, ctxErr)
			res.Err = &Failure{Kind: kind, Attempts: attempt, Cancelled: true, Err: ctxErr}
			return res
		}

		res.LastErr = err
		lastTimedOut = timedOut
		h.recordFailure(kind, timedOut)
		if timedOut {
			logging.ErrorsWarn("timeout on attempt %d/%d for %s", attempt, policy.MaxAttempts, kind)
		} else {
			logging.ErrorsWarn("%s failed (attempt %d/%d): %v", kind, attempt, policy.MaxAttempts, err)
		}

		if attempt < policy.MaxAttempts {
			logging.ErrorsDebug("retrying %s in %v", kind, delay)
			if err := h.sleep(ctx, delay); err != nil {
				res.Err = &Failure{Kind: kind, Attempts: attempt, Cancelled: true, Err: err}
				return res
			}
			delay = time.Duration(float64(delay) * policy.BackoffMultiplier)
		}
	}

	logging.ErrorsError("all %d attempts failed for %s", policy.MaxAttempts, kind)

	if fallback == nil {
		res.Err = &Failure{Kind: kind, Attempts: res.Attempts, Timeout: lastTimedOut, Err: res.LastErr}
		return res
	}

	logging.Errors("using fallback for %s", kind)
	value, err := callFallback(ctx, fallback)
	if err != nil {
		logging.ErrorsError("fallback also failed for %s: %v", kind, err)
		res.Err = &Failure{Kind: kind, Attempts: res.Attempts, Fallback: true, Err: err}
		return res
	}
	res.Value = value
	res.UsedFallback = true
	return res
}

type outcome[T any] struct {
	value T
	err   error
}

// runAttempt runs op under an optional per-attempt deadline. The op runs on
// its own goroutine so a deadline is enforced even if op ignores ctx; the
// buffered channel lets a late op finish without blocking.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (T, bool, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		var o outcome[T]
		defer func() {
			if r := recover(); r != nil {
				o = outcome[T]{err: fmt.Errorf("operation panicked: %v", r)}
			}
			done <- o
		}()
		o.value, o.err = op(attemptCtx)
	}()

	var zero T
	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, true, fmt.Errorf("%w after %v: %v", ErrAttemptTimeout, timeout, o.err)
		}
		return o.value, false, o.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		return zero, true, fmt.Errorf("%w after %v", ErrAttemptTimeout, timeout)
	}
}

func callFallback[T any](ctx context.Context, fallback Operation[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, fmt.Errorf("fallback panicked: %v", r)
		}
	}()
	return fallback(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
