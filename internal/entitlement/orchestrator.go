package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReasonNoPurchase is the reason attached to the Unlicensed state when the
// authority reports no valid purchase for this installation.
const ReasonNoPurchase = "no valid purchase"

const (
	opInitialize = "provider initialize"
	opIsEntitled = "entitlement check"

	// DefaultCallTimeout is the per-call deadline applied to each guarded
	// provider operation.
	DefaultCallTimeout = 5 * time.Second
)

// Provider supplies the two calls the verification engine gates on. The wire
// protocol and token validation live behind this interface.
type Provider interface {
	// Initialize prepares the provider. It must be idempotent: the
	// orchestrator calls it again on every retry cycle.
	Initialize(ctx context.Context) error
	// IsEntitled reports whether the current installation holds a valid
	// entitlement.
	IsEntitled(ctx context.Context) (bool, error)
}

// PurchaseLauncher starts the external purchase flow. The orchestrator only
// forwards the request; everything past the call is out of scope.
type PurchaseLauncher interface {
	LaunchPurchase(ctx context.Context) error
}

// Orchestrator owns the verification state machine. All state, the attempt
// counter and the single pending retry timer are confined to one event-loop
// goroutine, so transitions need no further synchronization. Public methods
// post events into the loop and return immediately.
type Orchestrator struct {
	provider Provider
	launcher PurchaseLauncher
	policy   Policy
	timeout  time.Duration
	sched    Scheduler
	onState  func(State)
	logger   *slog.Logger
	metrics  *Metrics

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// Owned by the run loop.
	state   State
	attempt uint
	pending TimerHandle
	gen     uint64

	// Published snapshot for Current.
	mu      sync.RWMutex
	current State
}

type eventKind int

const (
	evCheck eventKind = iota // manual or initial start; resets the attempt counter
	evRetry                  // scheduled retry fired; preserves the attempt counter
	evPurchase
)

type event struct {
	kind eventKind
	gen  uint64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithCallTimeout overrides the per-call guard deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithScheduler substitutes the retry scheduler. Tests use this to drive the
// backoff sequence without sleeping.
func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) { o.sched = s }
}

// WithPurchaseLauncher wires the external purchase flow.
func WithPurchaseLauncher(l PurchaseLauncher) Option {
	return func(o *Orchestrator) { o.launcher = l }
}

// WithLogger injects the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics wires Prometheus counters for state transitions.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator in the Idle state and starts its event loop.
// onState is invoked synchronously, on the loop goroutine, for every state
// transition; sinks render purely from the most recent value. Call Close to
// tear the loop down.
func New(provider Provider, onState func(State), opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		policy:   DefaultPolicy(),
		timeout:  DefaultCallTimeout,
		onState:  onState,
		logger:   slog.Default(),
		events:   make(chan event, 8),
		done:     make(chan struct{}),
		state:    Idle(),
		current:  Idle(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sched == nil {
		o.sched = NewScheduler(o.policy)
	}
	o.logger = o.logger.With(slog.String("component", "entitlement"))
	o.ctx, o.cancel = context.WithCancel(context.Background())

	go o.run()
	return o
}

// Start begins the first verification cycle. Calling it again behaves like
// CheckAgain.
func (o *Orchestrator) Start() {
	o.post(event{kind: evCheck})
}

// CheckAgain manually re-enters the verification cycle from Unlicensed or
// Failed (and defensively restarts from Checking). The attempt counter is
// reset to zero, so the backoff schedule starts over.
func (o *Orchestrator) CheckAgain() {
	o.post(event{kind: evCheck})
}

// PurchaseRequested forwards to the configured purchase launcher.
func (o *Orchestrator) PurchaseRequested() {
	o.post(event{kind: evPurchase})
}

// Current returns the most recent state. Safe for concurrent use.
func (o *Orchestrator) Current() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Close tears the orchestrator down: any pending timer is cancelled and an
// in-flight guarded call is abandoned without mutating state. Close blocks
// until the event loop has exited; afterwards no state change is observable.
func (o *Orchestrator) Close() {
	o.once.Do(func() {
		o.cancel()
		<-o.done
	})
}

func (o *Orchestrator) post(ev event) {
	select {
	case o.events <- ev:
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			o.cancelPending()
			return
		case ev := <-o.events:
			switch ev.kind {
			case evCheck:
				o.attempt = 0
				o.runCycle()
			case evRetry:
				if ev.gen != o.gen {
					// Stale timer that lost the cancellation race.
					continue
				}
				o.runCycle()
			case evPurchase:
				o.launchPurchase()
			}
		}
	}
}

// runCycle executes one guarded verification sequence: initialize, then the
// entitlement check. At most one cycle is ever in flight because the loop is
// single-goroutine; any pending retry timer is invalidated first.
func (o *Orchestrator) runCycle() {
	o.cancelPending()
	o.setState(Checking(o.attempt, ""))

	_, err := guard(o.ctx, opInitialize, o.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.provider.Initialize(ctx)
	})
	if err == nil {
		var entitled bool
		entitled, err = guard(o.ctx, opIsEntitled, o.timeout, o.provider.IsEntitled)
		if err == nil {
			if entitled {
				o.setState(Licensed())
			} else {
				o.setState(Unlicensed(ReasonNoPurchase))
			}
			return
		}
	}

	if o.ctx.Err() != nil {
		// Torn down while the call was in flight. The abandoned call must
		// not mutate state.
		return
	}
	o.handleFailure(err)
}

// handleFailure applies the retry policy. Every failure either schedules
// exactly one retry or settles in Failed; no error is silently dropped.
func (o *Orchestrator) handleFailure(cause error) {
	o.attempt++

	o.logger.WarnContext(o.ctx, "verification attempt failed",
		slog.Uint64("attempt", uint64(o.attempt-1)),
		slog.Bool("timeout", IsTimeout(cause)),
		slog.String("error", cause.Error()))

	if o.attempt >= o.policy.MaxRetries {
		o.setState(Failed(cause.Error()))
		return
	}

	delay := o.policy.Delay(o.attempt - 1)
	gen := o.gen
	o.pending = o.sched.Schedule(o.attempt-1, func() {
		select {
		case o.events <- event{kind: evRetry, gen: gen}:
		case <-o.ctx.Done():
		}
	})
	o.setState(Checking(o.attempt, fmt.Sprintf("retrying in %s", delay)))
}

// cancelPending invalidates the outstanding retry timer, if any. Bumping the
// generation also neutralizes a timer whose callback already fired but whose
// event has not been consumed yet.
func (o *Orchestrator) cancelPending() {
	if o.pending != nil {
		o.pending.Cancel()
		o.pending = nil
	}
	o.gen++
}

func (o *Orchestrator) setState(s State) {
	o.state = s
	o.mu.Lock()
	o.current = s
	o.mu.Unlock()

	o.logger.InfoContext(o.ctx, "verification state changed",
		slog.String("state", s.String()))
	if o.metrics != nil {
		o.metrics.ObserveTransition(s)
	}
	if o.onState != nil {
		o.onState(s)
	}
}

func (o *Orchestrator) launchPurchase() {
	if o.launcher == nil {
		o.logger.WarnContext(o.ctx, "purchase requested but no launcher configured")
		return
	}
	if err := o.launcher.LaunchPurchase(o.ctx); err != nil {
		o.logger.ErrorContext(o.ctx, "purchase flow launch failed",
			slog.String("error", err.Error()))
	}
}
