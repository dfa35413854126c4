// Package entitlement gates application entry behind an asynchronous check
// against the licensing authority.
//
// The package is built from three pieces, leaf-first:
//
//   - a timeout guard that races a single provider call against a deadline
//     and distinguishes expiry from the call's own failure,
//   - a retry scheduler that arranges one cancellable deferred re-check with
//     linear backoff (300ms, 600ms, 900ms),
//   - an orchestrator owning the verification state machine: Idle, Checking,
//     Licensed, Unlicensed, Failed.
//
// The orchestrator confines all mutable state to a single event-loop
// goroutine. Presentation layers subscribe through the state callback
// passed to New and render purely from the most recent State; user actions
// re-enter through CheckAgain and PurchaseRequested.
//
// Terminal states are only left by explicit user action. After exhausting
// the retry budget the machine settles in Failed; a manual CheckAgain resets
// the attempt counter and starts the backoff schedule over.
package entitlement
