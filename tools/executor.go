// Tool execution with retry logic.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default execution limits.
const (
	DefaultToolTimeout = 60 * time.Second
	DefaultMaxAttempts = 2
)

// RetryPolicy configures per-call timeouts and retries of idempotent
// tools.
type RetryPolicy struct {
	Timeout     time.Duration
	MaxAttempts uint32
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:     DefaultToolTimeout,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// attempts returns how many times tool may run.
func (p RetryPolicy) attempts(tool Tool) uint32 {
	if p.MaxAttempts == 0 {
		return 1
	}
	if idem, ok := tool.(Idempotent); ok && idem.Idempotent() {
		return p.MaxAttempts
	}
	return 1
}

// run executes tool under the policy. Panics inside the tool are turned
// into errors.
func (p RetryPolicy) run(ctx context.Context, tool Tool, args json.RawMessage) (Result, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var lastErr error
	maxAttempts := p.attempts(tool)
	for attempt := uint32(0); attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}

		result, err := safeExecute(ctx, tool, args)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !shouldRetry(err) {
			break
		}
	}
	return nil, lastErr
}

// backoff returns the delay before the given attempt.
func (p RetryPolicy) backoff(attempt uint32) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func safeExecute(ctx context.Context, tool Tool, args json.RawMessage) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}

// shouldRetry reports whether err looks transient.
func shouldRetry(err error) bool {
	if errors.Is(err, ErrInvalidArguments) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errLower := strings.ToLower(err.Error())

	// Don't retry validation errors or permission issues
	for _, s := range []string{"validation", "not allowed", "permission", "invalid"} {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	for _, s := range []string{"timeout", "connection", "network", "eof", "status 5"} {
		if strings.Contains(errLower, s) {
			return true
		}
	}
	return false
}
