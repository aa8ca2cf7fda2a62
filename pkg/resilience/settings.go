package resilience

import (
	"context"
	"errors"
	"time"
)

const (
	defaultBreakerInterval = time.Minute
	defaultBreakerTimeout  = 30 * time.Second
	defaultFailures        = 5
	defaultProbes          = 1
)

// BuildSettings turns configuration knobs into breaker Settings. Non-positive
// values take the defaults. Caller cancellation never counts as a failure of
// the protected dependency; ignore lists further errors that should not either.
func BuildSettings(name string, interval, timeout time.Duration, failureThreshold, successThreshold int, ignore ...error) Settings {
	if interval <= 0 {
		interval = defaultBreakerInterval
	}
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	if failureThreshold <= 0 {
		failureThreshold = defaultFailures
	}
	if successThreshold <= 0 {
		successThreshold = defaultProbes
	}

	return Settings{
		Name:             name,
		Interval:         interval,
		Timeout:          timeout,
		FailureThreshold: uint32(failureThreshold),
		SuccessThreshold: uint32(successThreshold),
		IsFailure:        IgnoreErrors(append([]error{context.Canceled}, ignore...)...),
	}
}

// IgnoreErrors returns a failure classifier under which errors matching any
// of errs (by errors.Is) leave the breaker counts untouched.
func IgnoreErrors(errs ...error) func(error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		for _, target := range errs {
			if errors.Is(err, target) {
				return false
			}
		}
		return true
	}
}
