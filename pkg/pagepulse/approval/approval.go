// Package approval provides the human-in-the-loop escalation channel.
//
// When the orchestrator exhausts its retries (or hits a fatal error) it
// notifies the escalation channel once and then waits for an approval
// decision. Decisions are fire-and-forget messages sent by external actors;
// the orchestrator polls its store for them while escalated.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Verdict is the decision carried by an approval signal.
type Verdict string

// Verdicts.
const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Decision is a fire-and-forget approval message for an escalated run.
type Decision struct {
	// ID uniquely identifies this decision.
	ID string `json:"id"`

	// RunID is the escalated run this decision targets.
	RunID string `json:"run_id"`

	// Verdict approves another round of attempts or abandons the run.
	Verdict Verdict `json:"verdict"`

	// ApprovedBy identifies who decided.
	ApprovedBy string `json:"approved_by,omitempty"`

	// Note carries free-form operator context.
	Note string `json:"note,omitempty"`

	// SentAt is when the decision was issued.
	SentAt time.Time `json:"sent_at"`
}

// NewDecision creates a decision for a run.
func NewDecision(runID string, verdict Verdict) *Decision {
	return &Decision{
		ID:      fmt.Sprintf("apr-%s", uuid.New().String()[:8]),
		RunID:   runID,
		Verdict: verdict,
		SentAt:  time.Now(),
	}
}

// WithApprover sets the approver on the decision.
func (d *Decision) WithApprover(who string) *Decision {
	d.ApprovedBy = who
	return d
}

// Store persists and retrieves approval decisions.
type Store interface {
	// Submit records a decision for an escalated run.
	Submit(ctx context.Context, d *Decision) error

	// Poll returns the oldest undelivered decision for a run, or nil when
	// none is pending. A delivered decision is consumed.
	Poll(ctx context.Context, runID string) (*Decision, error)
}

// AttemptSummary is one executed attempt of the escalated run.
type AttemptSummary struct {
	// Number is the attempt number, starting at 1.
	Number int `json:"number"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// Error is the attempt's failure, empty on success.
	Error string `json:"error,omitempty"`
}

// Escalation describes why a run escalated, for the notification channel.
type Escalation struct {
	// RunID is the escalated run.
	RunID string

	// Attempts is how many attempts were made before escalating.
	Attempts int

	// LastErr is the error that forced escalation.
	LastErr error

	// Fatal is true when the error bypassed retry entirely.
	Fatal bool

	// History holds every executed attempt, oldest first, so the channel
	// surfaces how the run failed and not just its last error.
	History []AttemptSummary
}

// Notifier is the external escalation channel. The orchestrator calls
// Notify exactly once per transition into the escalated state.
type Notifier interface {
	Notify(ctx context.Context, e Escalation) error
}

// LogNotifier is a Notifier that writes escalations to a structured log.
// Production deployments swap in a chat/pager integration behind the same
// interface.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, e Escalation) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		slog.String("run_id", e.RunID),
		slog.Int("attempts", e.Attempts),
		slog.Bool("fatal", e.Fatal),
		slog.String("error", e.LastErr.Error()),
	}
	for _, a := range e.History {
		attrs = append(attrs, slog.Group(fmt.Sprintf("attempt_%d", a.Number),
			slog.Time("started_at", a.StartedAt),
			slog.String("error", a.Error),
		))
	}
	logger.Warn("run escalated, awaiting approval", attrs...)
	return nil
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string][]*Decision // runID -> FIFO of undelivered decisions
}

// NewMemoryStore creates a new in-memory approval store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pending: make(map[string][]*Decision)}
}

// Submit implements Store.
func (s *MemoryStore) Submit(_ context.Context, d *Decision) error {
	if d.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if d.Verdict != VerdictApprove && d.Verdict != VerdictReject {
		return fmt.Errorf("unknown verdict %q", d.Verdict)
	}
	if d.ID == "" {
		d.ID = fmt.Sprintf("apr-%s", uuid.New().String()[:8])
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[d.RunID] = append(s.pending[d.RunID], d)
	return nil
}

// Poll implements Store.
func (s *MemoryStore) Poll(_ context.Context, runID string) (*Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.pending[runID]
	if len(queue) == 0 {
		return nil, nil
	}
	d := queue[0]
	s.pending[runID] = queue[1:]
	return d, nil
}
