package entitlement

import (
	"sync"
	"time"
)

// Policy describes the automatic retry schedule applied after a failed
// verification cycle.
type Policy struct {
	// MaxRetries is the number of automatic re-checks before the machine
	// settles in Failed.
	MaxRetries uint
	// BaseDelay is the unit of the linear backoff schedule.
	BaseDelay time.Duration
}

// DefaultPolicy returns the production schedule: three retries at 300ms,
// 600ms and 900ms.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 300 * time.Millisecond}
}

// Delay returns the backoff before the retry for the given 0-based attempt
// index: (attempt+1) * BaseDelay.
func (p Policy) Delay(attempt uint) time.Duration {
	return time.Duration(attempt+1) * p.BaseDelay
}

// TimerHandle is an outstanding scheduled retry. Cancel guarantees the
// callback will not subsequently fire, even when called concurrently with
// timer expiry: the cancel/fire race is resolved in favor of cancellation.
type TimerHandle interface {
	Cancel()
}

// Scheduler arranges a single deferred re-invocation after the policy delay
// for the given attempt index.
type Scheduler interface {
	Schedule(attempt uint, fn func()) TimerHandle
}

// timerScheduler is the wall-clock Scheduler used in production. Tests
// substitute a fake so the backoff sequence can be driven without sleeping.
type timerScheduler struct {
	policy Policy
}

// NewScheduler returns a Scheduler backed by time.AfterFunc.
func NewScheduler(policy Policy) Scheduler {
	return &timerScheduler{policy: policy}
}

func (s *timerScheduler) Schedule(attempt uint, fn func()) TimerHandle {
	h := &timerHandle{}
	h.mu.Lock()
	h.timer = time.AfterFunc(s.policy.Delay(attempt), func() {
		h.mu.Lock()
		if h.cancelled {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()
		fn()
	})
	h.mu.Unlock()
	return h
}

// timerHandle serializes Cancel against expiry. Whichever takes the mutex
// first wins; a handle observed as cancelled never invokes its callback.
type timerHandle struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	fired     bool
}

func (h *timerHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
}
