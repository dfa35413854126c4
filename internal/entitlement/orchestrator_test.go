package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts Initialize and IsEntitled per call number (1-based).
type fakeProvider struct {
	mu         sync.Mutex
	initCalls  int
	checkCalls int
	init       func(call int, ctx context.Context) error
	entitled   func(call int, ctx context.Context) (bool, error)
}

func (p *fakeProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	p.initCalls++
	call := p.initCalls
	fn := p.init
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(call, ctx)
}

func (p *fakeProvider) IsEntitled(ctx context.Context) (bool, error) {
	p.mu.Lock()
	p.checkCalls++
	call := p.checkCalls
	fn := p.entitled
	p.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn(call, ctx)
}

func (p *fakeProvider) checks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkCalls
}

// fakeScheduler captures scheduled retries so tests can fire them on demand
// instead of sleeping through the backoff.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu        sync.Mutex
	attempt   uint
	fn        func()
	cancelled bool
}

func (s *fakeScheduler) Schedule(attempt uint, fn func()) TimerHandle {
	t := &fakeTimer{attempt: attempt, fn: fn}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

func (t *fakeTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

func (t *fakeTimer) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Fire behaves like timer expiry: a cancelled handle never invokes its
// callback.
func (t *fakeTimer) Fire() {
	t.mu.Lock()
	cancelled := t.cancelled
	t.mu.Unlock()
	if !cancelled {
		t.fn()
	}
}

// FireIgnoringCancel simulates an expiry that lost the cancellation race at
// the scheduler layer; the orchestrator must still drop the stale event.
func (t *fakeTimer) FireIgnoringCancel() {
	t.fn()
}

func newTestOrchestrator(t *testing.T, p Provider, opts ...Option) (*Orchestrator, <-chan State) {
	t.Helper()
	states := make(chan State, 64)
	o := New(p, func(s State) { states <- s }, opts...)
	t.Cleanup(o.Close)
	return o, states
}

func nextState(t *testing.T, states <-chan State) State {
	t.Helper()
	select {
	case s := <-states:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state transition")
		return State{}
	}
}

func requireNoState(t *testing.T, states <-chan State) {
	t.Helper()
	select {
	case s := <-states:
		t.Fatalf("unexpected state transition: %s", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrchestratorLicensedFirstTry(t *testing.T) {
	provider := &fakeProvider{}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider, WithScheduler(sched))

	o.Start()

	assert.Equal(t, Checking(0, ""), nextState(t, states))
	assert.Equal(t, Licensed(), nextState(t, states))
	assert.Equal(t, KindLicensed, o.Current().Kind)
	assert.Zero(t, sched.count(), "success must not schedule a retry")
}

func TestOrchestratorUnlicensed(t *testing.T) {
	provider := &fakeProvider{
		entitled: func(int, context.Context) (bool, error) { return false, nil },
	}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider, WithScheduler(sched))

	o.Start()

	assert.Equal(t, Checking(0, ""), nextState(t, states))
	got := nextState(t, states)
	assert.Equal(t, KindUnlicensed, got.Kind)
	assert.Equal(t, ReasonNoPurchase, got.Reason)
	assert.True(t, got.Terminal())
	assert.Zero(t, sched.count(), "an explicit denial is not an error and must not retry")
}

// Scenario: initialize always succeeds, the entitlement check fails on the
// first two attempts and succeeds on the third.
func TestOrchestratorRetriesThenLicensed(t *testing.T) {
	provider := &fakeProvider{
		entitled: func(call int, _ context.Context) (bool, error) {
			if call <= 2 {
				return false, errors.New("authority unreachable")
			}
			return true, nil
		},
	}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider, WithScheduler(sched))

	o.Start()

	assert.Equal(t, Checking(0, ""), nextState(t, states))
	assert.Equal(t, Checking(1, "retrying in 300ms"), nextState(t, states))
	require.Equal(t, 1, sched.count())
	assert.Equal(t, uint(0), sched.timer(0).attempt)

	sched.timer(0).Fire()
	assert.Equal(t, Checking(1, ""), nextState(t, states))
	assert.Equal(t, Checking(2, "retrying in 600ms"), nextState(t, states))
	require.Equal(t, 2, sched.count())
	assert.Equal(t, uint(1), sched.timer(1).attempt)

	sched.timer(1).Fire()
	assert.Equal(t, Checking(2, ""), nextState(t, states))
	assert.Equal(t, Licensed(), nextState(t, states))
	assert.Equal(t, 3, provider.checks())
	assert.Equal(t, 2, sched.count(), "success must not schedule a further retry")
}

// Scenario: every entitlement check fails; after exhausting the retry budget
// the machine settles in Failed and schedules nothing further.
func TestOrchestratorRetriesExhausted(t *testing.T) {
	provider := &fakeProvider{
		entitled: func(int, context.Context) (bool, error) {
			return false, errors.New("authority unreachable")
		},
	}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider, WithScheduler(sched))

	o.Start()

	assert.Equal(t, Checking(0, ""), nextState(t, states))
	assert.Equal(t, Checking(1, "retrying in 300ms"), nextState(t, states))
	sched.timer(0).Fire()
	assert.Equal(t, Checking(1, ""), nextState(t, states))
	assert.Equal(t, Checking(2, "retrying in 600ms"), nextState(t, states))
	sched.timer(1).Fire()
	assert.Equal(t, Checking(2, ""), nextState(t, states))

	got := nextState(t, states)
	assert.Equal(t, KindFailed, got.Kind)
	assert.Contains(t, got.Reason, "authority unreachable")
	assert.True(t, got.Terminal())

	assert.Equal(t, 3, provider.checks(), "exactly maxRetries checks run")
	assert.Equal(t, 2, sched.count(), "exhaustion must not schedule another timer")
	requireNoState(t, states)
}

// Scenario: initialize exceeds its deadline. A timeout follows the same
// retry path as a provider error; only the reason string differs.
func TestOrchestratorTimeoutFollowsRetryPath(t *testing.T) {
	provider := &fakeProvider{
		init: func(_ int, ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider,
		WithScheduler(sched),
		WithCallTimeout(20*time.Millisecond))

	o.Start()

	assert.Equal(t, Checking(0, ""), nextState(t, states))
	got := nextState(t, states)
	assert.Equal(t, Checking(1, "retrying in 300ms"), got)

	sched.timer(0).Fire()
	assert.Equal(t, Checking(1, ""), nextState(t, states))
	assert.Equal(t, Checking(2, "retrying in 600ms"), nextState(t, states))

	sched.timer(1).Fire()
	assert.Equal(t, Checking(2, ""), nextState(t, states))

	final := nextState(t, states)
	assert.Equal(t, KindFailed, final.Kind)
	assert.Contains(t, final.Reason, "timed out")
	assert.Equal(t, 0, provider.checks(), "the entitlement check never runs when initialize times out")
}

// A manual CheckAgain while a retry timer is pending cancels that timer
// before starting the new cycle, so no double execution occurs.
func TestOrchestratorCheckAgainCancelsPendingTimer(t *testing.T) {
	provider := &fakeProvider{
		entitled: func(call int, _ context.Context) (bool, error) {
			if call == 1 {
				return false, errors.New("authority unreachable")
			}
			return true, nil
		},
	}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider, WithScheduler(sched))

	o.Start()
	assert.Equal(t, Checking(0, ""), nextState(t, states))
	assert.Equal(t, Checking(1, "retrying in 300ms"), nextState(t, states))

	o.CheckAgain()
	assert.Equal(t, Checking(0, ""), nextState(t, states))
	assert.Equal(t, Licensed(), nextState(t, states))

	assert.True(t, sched.timer(0).isCancelled())

	// The cancelled timer must be a no-op even if it still fires.
	sched.timer(0).Fire()
	requireNoState(t, states)
}

// A timer expiry that slips past scheduler-level cancellation is still
// dropped by the orchestrator: its generation is stale.
func TestOrchestratorStaleTimerFireIsNoOp(t *testing.T) {
	provider := &fakeProvider{
		entitled: func(call int, _ context.Context) (bool, error) {
			if call == 1 {
				return false, errors.New("authority unreachable")
			}
			return true, nil
		},
	}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider, WithScheduler(sched))

	o.Start()
	assert.Equal(t, Checking(0, ""), nextState(t, states))
	assert.Equal(t, Checking(1, "retrying in 300ms"), nextState(t, states))

	o.CheckAgain()
	assert.Equal(t, Checking(0, ""), nextState(t, states))
	assert.Equal(t, Licensed(), nextState(t, states))
	checksAfter := provider.checks()

	sched.timer(0).FireIgnoringCancel()
	requireNoState(t, states)
	assert.Equal(t, checksAfter, provider.checks(), "a stale expiry must not start a cycle")
}

// The attempt counter resets on manual re-invocation after exhaustion, so
// the backoff schedule starts over.
func TestOrchestratorCheckAgainResetsAttemptCounter(t *testing.T) {
	var allow bool
	var mu sync.Mutex
	provider := &fakeProvider{
		entitled: func(int, context.Context) (bool, error) {
			mu.Lock()
			ok := allow
			mu.Unlock()
			if !ok {
				return false, errors.New("authority unreachable")
			}
			return true, nil
		},
	}
	sched := &fakeScheduler{}
	o, states := newTestOrchestrator(t, provider, WithScheduler(sched))

	o.Start()
	for {
		s := nextState(t, states)
		if s.Kind == KindFailed {
			break
		}
		if s.Kind == KindChecking && s.Message != "" {
			sched.timer(sched.count() - 1).Fire()
		}
	}

	mu.Lock()
	allow = true
	mu.Unlock()

	o.CheckAgain()
	assert.Equal(t, Checking(0, ""), nextState(t, states),
		"manual retry restarts at attempt zero")
	assert.Equal(t, Licensed(), nextState(t, states))
}

// Teardown cancels pending timers and suppresses the in-flight call's
// eventual completion: no state mutation is observable after Close.
func TestOrchestratorCloseDuringInFlightCheck(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{
		init: func(_ int, ctx context.Context) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	states := make(chan State, 64)
	o := New(provider, func(s State) { states <- s }, WithScheduler(&fakeScheduler{}))

	o.Start()
	select {
	case s := <-states:
		assert.Equal(t, Checking(0, ""), s)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for checking state")
	}

	o.Close()
	close(release)

	select {
	case s := <-states:
		t.Fatalf("state mutated after teardown: %s", s)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, KindChecking, o.Current().Kind, "state frozen at teardown point")
}

func TestOrchestratorCloseCancelsPendingRetry(t *testing.T) {
	provider := &fakeProvider{
		entitled: func(int, context.Context) (bool, error) {
			return false, errors.New("authority unreachable")
		},
	}
	sched := &fakeScheduler{}
	states := make(chan State, 64)
	o := New(provider, func(s State) { states <- s }, WithScheduler(sched))

	o.Start()
	for {
		s := <-states
		if s.Message != "" {
			break
		}
	}

	o.Close()
	require.Equal(t, 1, sched.count())
	assert.True(t, sched.timer(0).isCancelled(), "teardown must cancel the pending retry")
}

func TestOrchestratorPurchaseRequested(t *testing.T) {
	launched := make(chan struct{}, 1)
	provider := &fakeProvider{}
	o, _ := newTestOrchestrator(t, provider,
		WithScheduler(&fakeScheduler{}),
		WithPurchaseLauncher(launcherFunc(func(context.Context) error {
			launched <- struct{}{}
			return nil
		})))

	o.PurchaseRequested()

	select {
	case <-launched:
	case <-time.After(2 * time.Second):
		t.Fatal("purchase launcher was never invoked")
	}
}

type launcherFunc func(ctx context.Context) error

func (f launcherFunc) LaunchPurchase(ctx context.Context) error { return f(ctx) }
