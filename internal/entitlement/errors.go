package entitlement

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports that a guarded provider call did not complete before
// its deadline. The underlying call is abandoned; its eventual result is
// discarded.
type TimeoutError struct {
	Op       string
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Deadline)
}

// ProviderError wraps a failure returned by the licensing provider itself,
// e.g. a network or validation fault. The retry policy treats it exactly
// like a timeout; the distinction only surfaces in the reason string.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is (or wraps) a guard deadline expiry.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
