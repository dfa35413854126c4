package entitlement

import "fmt"

// Kind identifies which variant of the verification state is active.
type Kind string

const (
	// KindIdle is the state before the first check has started.
	KindIdle Kind = "idle"
	// KindChecking means a check is in flight or a retry is scheduled.
	KindChecking Kind = "checking"
	// KindLicensed is the terminal success state.
	KindLicensed Kind = "licensed"
	// KindUnlicensed means the authority explicitly denied entitlement.
	// This is a terminal state, not an error.
	KindUnlicensed Kind = "unlicensed"
	// KindFailed is the terminal state after exhausting retries or a
	// definitive provider error. Recoverable only via CheckAgain.
	KindFailed Kind = "failed"
)

// State is the verification state machine's current position. Exactly one
// variant is active at a time; the auxiliary fields are only meaningful for
// the kinds documented on them.
type State struct {
	Kind Kind `json:"kind"`

	// Attempt is the 0-based count of prior failures. Checking only.
	Attempt uint `json:"attempt,omitempty"`
	// Message carries progress detail such as "retrying in 600ms". Checking only.
	Message string `json:"message,omitempty"`
	// Reason explains why entitlement was denied or verification gave up.
	// Unlicensed and Failed only.
	Reason string `json:"reason,omitempty"`
}

// Idle returns the state before the first check.
func Idle() State {
	return State{Kind: KindIdle}
}

// Checking returns the in-flight state for the given attempt. An empty
// message means the guarded sequence is running; a non-empty message means
// a retry is scheduled.
func Checking(attempt uint, message string) State {
	return State{Kind: KindChecking, Attempt: attempt, Message: message}
}

// Licensed returns the terminal success state.
func Licensed() State {
	return State{Kind: KindLicensed}
}

// Unlicensed returns the terminal denied state.
func Unlicensed(reason string) State {
	return State{Kind: KindUnlicensed, Reason: reason}
}

// Failed returns the terminal error state.
func Failed(reason string) State {
	return State{Kind: KindFailed, Reason: reason}
}

// Terminal reports whether no automatic transition can leave this state.
// Only explicit user action (CheckAgain) re-enters the cycle.
func (s State) Terminal() bool {
	switch s.Kind {
	case KindLicensed, KindUnlicensed, KindFailed:
		return true
	}
	return false
}

// String renders the state for logs.
func (s State) String() string {
	switch s.Kind {
	case KindChecking:
		if s.Message != "" {
			return fmt.Sprintf("checking(attempt=%d, %s)", s.Attempt, s.Message)
		}
		return fmt.Sprintf("checking(attempt=%d)", s.Attempt)
	case KindUnlicensed, KindFailed:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
	default:
		return string(s.Kind)
	}
}
