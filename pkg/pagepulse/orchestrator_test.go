package pagepulse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepulse/pagepulse/pkg/pagepulse/approval"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/config"
	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner fails with the scripted errors in order, then succeeds.
type fakeRunner struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakeRunner) RunOnce(_ context.Context, _ time.Time) (Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) {
		return Counts{}, f.errs[i]
	}
	return Counts{Input: 1, Flattened: 1, Aggregated: 1}, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingNotifier captures escalations and optionally submits a decision
// in response, playing the part of the on-call human.
type recordingNotifier struct {
	mu     sync.Mutex
	events []approval.Escalation
	store  approval.Store
	reply  approval.Verdict // empty -> no reply
}

func (n *recordingNotifier) Notify(ctx context.Context, e approval.Escalation) error {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	if n.reply != "" && n.store != nil {
		return n.store.Submit(ctx, approval.NewDecision(e.RunID, n.reply))
	}
	return nil
}

func (n *recordingNotifier) escalations() []approval.Escalation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]approval.Escalation(nil), n.events...)
}

// newTestOrchestrator wires an orchestrator with instant sleeps that are
// recorded for backoff assertions.
func newTestOrchestrator(runner Runner, settings config.Settings, opts ...Option) (*Orchestrator, *[]time.Duration) {
	opts = append(opts, WithLogger(discardLogger()))
	o := NewOrchestrator(runner, settings, opts...)
	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sleeps = append(sleeps, d)
		return nil
	}
	return o, &sleeps
}

func transientErr() error {
	return &pperrors.SinkError{Sink: "analytics", Op: "upsert", Wrapped: errors.New("unavailable")}
}

func TestTrigger_SucceedsFirstAttempt(t *testing.T) {
	runner := &fakeRunner{}
	o, sleeps := newTestOrchestrator(runner, config.Defaults())

	run, err := o.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, 1, run.Attempt)
	assert.Len(t, run.History, 1)
	assert.Empty(t, *sleeps)
	assert.Equal(t, StateIdle, o.State(), "orchestrator returns to idle after success")
}

func TestTrigger_BackoffDoublesPerAttempt(t *testing.T) {
	// Failures on attempts 1 and 2: the orchestrator waits base then
	// 2*base before attempt 3, which succeeds.
	runner := &fakeRunner{errs: []error{transientErr(), transientErr()}}
	o, sleeps := newTestOrchestrator(runner, config.Defaults())

	run, err := o.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, 3, run.Attempt)
	assert.Equal(t, 3, runner.callCount())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestTrigger_EscalatesAfterMaxAttempts(t *testing.T) {
	runner := &fakeRunner{errs: []error{transientErr(), transientErr(), transientErr()}}
	store := approval.NewMemoryStore()
	notifier := &recordingNotifier{store: store, reply: approval.VerdictReject}
	o, _ := newTestOrchestrator(runner, config.Defaults(),
		WithApprovals(store), WithNotifier(notifier))

	run, err := o.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, run.Outcome)
	assert.Equal(t, 3, runner.callCount(), "exactly max_attempts pipeline passes")

	events := notifier.escalations()
	require.Len(t, events, 1, "escalation channel notified exactly once")
	assert.Equal(t, 3, events[0].Attempts)
	assert.False(t, events[0].Fatal)
	assert.Error(t, events[0].LastErr)

	// The escalation surfaces the full attempt history, not just the
	// last error.
	require.Len(t, events[0].History, 3)
	for i, a := range events[0].History {
		assert.Equal(t, i+1, a.Number)
		assert.False(t, a.StartedAt.IsZero())
		assert.NotEmpty(t, a.Error)
	}
}

func TestTrigger_ApprovalResumesWithFreshAttempts(t *testing.T) {
	// All three initial attempts fail; the human approves; the next
	// attempt succeeds.
	runner := &fakeRunner{errs: []error{transientErr(), transientErr(), transientErr()}}
	store := approval.NewMemoryStore()
	notifier := &recordingNotifier{store: store, reply: approval.VerdictApprove}
	o, _ := newTestOrchestrator(runner, config.Defaults(),
		WithApprovals(store), WithNotifier(notifier))

	run, err := o.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, 1, run.Attempt, "approval resets the attempt budget")
	assert.Equal(t, 4, runner.callCount())
	assert.Len(t, notifier.escalations(), 1)
}

func TestTrigger_FatalErrorBypassesRetry(t *testing.T) {
	fatal := pperrors.Invariant(errors.New("empty page_url reached aggregator"), "aggregate")
	runner := &fakeRunner{errs: []error{fatal, fatal, fatal, fatal}}
	store := approval.NewMemoryStore()
	notifier := &recordingNotifier{store: store, reply: approval.VerdictReject}
	o, sleeps := newTestOrchestrator(runner, config.Defaults(),
		WithApprovals(store), WithNotifier(notifier))

	run, err := o.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, run.Outcome)
	assert.Equal(t, 1, runner.callCount(), "no retries for fatal errors")

	events := notifier.escalations()
	require.Len(t, events, 1)
	assert.True(t, events[0].Fatal)
	assert.Equal(t, 1, events[0].Attempts, "attempt number unchanged on fatal escalation")

	for _, d := range *sleeps {
		assert.NotEqual(t, time.Second, d, "no backoff waits for fatal errors")
	}
	_ = run
}

func TestTrigger_InvalidSettingsEscalateWithoutRunning(t *testing.T) {
	runner := &fakeRunner{}
	settings := config.Defaults()
	settings.MaxAttempts = 0
	store := approval.NewMemoryStore()
	notifier := &recordingNotifier{store: store, reply: approval.VerdictReject}
	o, _ := newTestOrchestrator(runner, settings,
		WithApprovals(store), WithNotifier(notifier))

	run, err := o.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, pperrors.CategoryConfig, pperrors.Categorize(run.Err))
	assert.Zero(t, runner.callCount(), "no pipeline work for invalid settings")
	require.Len(t, notifier.escalations(), 1)
	assert.True(t, notifier.escalations()[0].Fatal)
}

func TestTrigger_CancellationDuringRetryAbandons(t *testing.T) {
	runner := &fakeRunner{errs: []error{transientErr(), transientErr(), transientErr()}}
	o := NewOrchestrator(runner, config.Defaults(), WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel while the orchestrator is waiting out the first backoff.
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	run, err := o.Trigger(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, run.Outcome)
	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, StateIdle, o.State())
}

func TestTrigger_CancellationWhileEscalatedAbandons(t *testing.T) {
	runner := &fakeRunner{errs: []error{
		pperrors.Invariant(errors.New("bad"), "aggregate"),
	}}
	o := NewOrchestrator(runner, config.Defaults(), WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel() // nobody is coming to approve
		return ctx.Err()
	}

	run, err := o.Trigger(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, run.Outcome)
}

func TestTrigger_RejectsConcurrentRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, _ time.Time) (Counts, error) {
		close(started)
		<-release
		return Counts{}, nil
	})

	o := NewOrchestrator(runner, config.Defaults(), WithLogger(discardLogger()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Trigger(context.Background())
	}()

	<-started
	_, err := o.Trigger(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	<-done
}

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(ctx context.Context, clockBase time.Time) (Counts, error)

func (f runnerFunc) RunOnce(ctx context.Context, clockBase time.Time) (Counts, error) {
	return f(ctx, clockBase)
}

func TestRun_HistoryRecordsEveryAttempt(t *testing.T) {
	runner := &fakeRunner{errs: []error{transientErr()}}
	o, _ := newTestOrchestrator(runner, config.Defaults())

	run, err := o.Trigger(context.Background())
	require.NoError(t, err)
	require.Len(t, run.History, 2)
	assert.Equal(t, 1, run.History[0].Number)
	assert.Error(t, run.History[0].Err)
	assert.Equal(t, 2, run.History[1].Number)
	assert.NoError(t, run.History[1].Err)
}
