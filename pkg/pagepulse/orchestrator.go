package pagepulse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/pkg/pagepulse/approval"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/config"
	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/observability"
)

// Orchestrator is the supervisory state machine around pipeline runs.
//
// It owns the Run lifecycle exclusively: runs are created on trigger,
// retried with exponential backoff on transient failure, escalated for
// human approval when attempts are exhausted or the failure is fatal, and
// discarded on completion. No run state survives into the next trigger.
type Orchestrator struct {
	runner   Runner
	settings config.Settings

	approvals approval.Store
	notifier  approval.Notifier
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
	run   *Run
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSpans enables tracing with the given span manager.
func WithSpans(s observability.SpanManager) Option {
	return func(o *Orchestrator) { o.spans = s }
}

// WithApprovals sets the approval store polled while escalated.
func WithApprovals(store approval.Store) Option {
	return func(o *Orchestrator) { o.approvals = store }
}

// WithNotifier sets the escalation channel.
func WithNotifier(n approval.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// NewOrchestrator creates an orchestrator supervising the given runner.
func NewOrchestrator(runner Runner, settings config.Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:    runner,
		settings:  settings,
		approvals: approval.NewMemoryStore(),
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		sleep:     sleepCtx,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = approval.LogNotifier{Logger: o.logger}
	}
	return o
}

// State returns the current state-machine phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CurrentRun returns the run in flight, or nil when idle.
func (o *Orchestrator) CurrentRun() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// Approvals returns the approval store external actors submit decisions to.
func (o *Orchestrator) Approvals() approval.Store {
	return o.approvals
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Trigger starts and supervises one run. It blocks until the run reaches a
// terminal outcome: success, abandonment (rejection or cancellation), or
// context cancellation while escalated. The orchestrator returns to Idle
// afterwards.
//
// Settings are validated on every trigger; invalid settings escalate
// immediately as configuration errors without creating pipeline work.
func (o *Orchestrator) Trigger(ctx context.Context) (*Run, error) {
	run := newRun()

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, pperrors.Config(ErrAlreadyRunning, "trigger")
	}
	o.state = StateRunning
	o.run = run
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state = StateIdle
		o.run = nil
		o.mu.Unlock()
	}()

	logger := observability.EnrichLogger(o.logger, run.ID, run.Attempt)
	retryCfg := o.settings.RetryConfig()

	for {
		// Re-checked every pass: an approval cannot make bad settings
		// good, so a config error escalates again until rejected.
		if err := o.settings.Validate(); err != nil {
			run.recordAttempt(time.Now(), err)
			if escErr := o.escalate(ctx, run, err, true); escErr != nil {
				return run, escErr
			}
			continue
		}

		attemptErr := o.attempt(ctx, run)
		if attemptErr == nil {
			run.Outcome = OutcomeSuccess
			o.setState(StateSucceeded)
			return run, nil
		}

		if ctx.Err() != nil {
			return run, o.abandon(run, attemptErr)
		}

		if pperrors.IsFatal(attemptErr) {
			// Fatal errors bypass retry: attempt_number stays as-is,
			// distinguishing "needs more tries" from "needs a human now".
			if err := o.escalate(ctx, run, attemptErr, true); err != nil {
				return run, err
			}
			continue
		}

		if run.Attempt >= o.settings.MaxAttempts {
			if err := o.escalate(ctx, run, attemptErr, false); err != nil {
				return run, err
			}
			continue
		}

		// Transient failure with attempts left: back off, then go again.
		o.setState(StateRetrying)
		delay := retryCfg.BackoffAt(run.Attempt)
		logger.Info("retrying after backoff",
			slog.Int("attempt", run.Attempt),
			slog.Float64("backoff_ms", float64(delay.Milliseconds())),
			slog.String("error", attemptErr.Error()),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return run, o.abandon(run, attemptErr)
		}
		run.Attempt++
		o.setState(StateRunning)
	}
}

// attempt executes a single pipeline pass and records it on the run.
func (o *Orchestrator) attempt(ctx context.Context, run *Run) error {
	logger := observability.EnrichLogger(o.logger, run.ID, run.Attempt)
	observability.LogRunStart(logger, run.ID, run.Attempt)

	attemptCtx, span := o.spans.StartRunSpan(ctx, run.ID, run.Attempt)
	started := time.Now()

	counts, err := o.runner.RunOnce(attemptCtx, run.StartedAt)

	duration := time.Since(started)
	run.recordAttempt(started, err)
	o.metrics.RecordRun(ctx, err == nil, duration)
	o.spans.EndSpanWithError(span, err)

	if o.settings.SLAThreshold > 0 && duration > o.settings.SLAThreshold {
		observability.LogSLABreach(logger, run.ID, duration, o.settings.SLAThreshold)
	}

	if err != nil {
		observability.LogRunError(logger, run.ID, run.Attempt, err, float64(duration.Milliseconds()))
		return err
	}

	observability.LogRunComplete(logger, observability.RunReport{
		RunID:      run.ID,
		Attempts:   run.Attempt,
		Duration:   duration,
		Input:      counts.Input,
		Rejected:   counts.Rejected,
		Flattened:  counts.Flattened,
		Aggregated: counts.Aggregated,
		Sinks:      counts.Sinks,
	})
	return nil
}

// escalate notifies the escalation channel exactly once and blocks until an
// approval decision arrives or the context is cancelled. An approval
// resumes the run with a fresh attempt budget; a rejection (or
// cancellation) abandons it. A nil return means "approved, keep looping".
func (o *Orchestrator) escalate(ctx context.Context, run *Run, cause error, fatal bool) error {
	o.setState(StateEscalated)
	o.metrics.RecordEscalation(ctx, fatal)

	history := make([]approval.AttemptSummary, 0, len(run.History))
	for _, a := range run.History {
		s := approval.AttemptSummary{Number: a.Number, StartedAt: a.StartedAt}
		if a.Err != nil {
			s.Error = a.Err.Error()
		}
		history = append(history, s)
	}

	if err := o.notifier.Notify(ctx, approval.Escalation{
		RunID:    run.ID,
		Attempts: run.Attempt,
		LastErr:  cause,
		Fatal:    fatal,
		History:  history,
	}); err != nil {
		o.logger.Error("escalation notification failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}

	for {
		decision, err := o.approvals.Poll(ctx, run.ID)
		if err != nil {
			o.logger.Error("approval poll failed",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		}
		if decision != nil {
			if decision.Verdict == approval.VerdictApprove {
				o.logger.Info("run approved for another attempt round",
					slog.String("run_id", run.ID),
					slog.String("approved_by", decision.ApprovedBy),
				)
				run.Attempt = 1
				o.setState(StateRunning)
				return nil
			}
			return o.abandon(run, cause)
		}

		if err := o.sleep(ctx, o.settings.ApprovalPollInterval); err != nil {
			return o.abandon(run, cause)
		}
	}
}

// abandon moves the run to its terminal failed state.
func (o *Orchestrator) abandon(run *Run, cause error) error {
	run.Outcome = OutcomeFailed
	run.Err = cause
	o.setState(StateAbandoned)
	o.logger.Warn("run abandoned",
		slog.String("run_id", run.ID),
		slog.Int("attempts", run.Attempt),
		slog.String("error", cause.Error()),
	)
	return cause
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
