package pagepulse

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a phase of the orchestrator's state machine.
type State string

// Orchestrator states.
const (
	// StateIdle means no run is in flight; a trigger starts one.
	StateIdle State = "idle"

	// StateRunning means a pipeline attempt is executing.
	StateRunning State = "running"

	// StateRetrying means an attempt failed transiently and the next one
	// is waiting out its backoff.
	StateRetrying State = "retrying"

	// StateSucceeded means the last run completed; terminal for that run.
	StateSucceeded State = "succeeded"

	// StateEscalated means attempts are exhausted (or a fatal error
	// occurred) and the run is waiting for a human decision.
	StateEscalated State = "escalated"

	// StateAbandoned means the run was rejected or cancelled; terminal.
	StateAbandoned State = "abandoned"
)

// Outcome is the recorded result of a run.
type Outcome string

// Run outcomes.
const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Attempt records one executed attempt for the run's history.
type Attempt struct {
	// Number starts at 1.
	Number int `json:"number"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the attempt took.
	Duration time.Duration `json:"duration"`

	// Err is the attempt's failure, nil on success.
	Err error `json:"-"`
}

// Run is the bookkeeping for one supervised pipeline execution. The run
// owns no pipeline data: aggregate rows go straight to the sinks and are
// not retained here.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Attempt is the current attempt number, starting at 1.
	Attempt int `json:"attempt"`

	// StartedAt anchors the run clock; every attempt replays the same
	// ingestion timestamps from it.
	StartedAt time.Time `json:"started_at"`

	// Outcome is pending until the run reaches a terminal state.
	Outcome Outcome `json:"outcome"`

	// Err is the last error observed, surfaced on escalation.
	Err error `json:"-"`

	// History lists every executed attempt.
	History []Attempt `json:"history"`
}

// newRun creates a pending run with attempt number 1.
func newRun() *Run {
	return &Run{
		ID:        fmt.Sprintf("run-%s", uuid.New().String()[:8]),
		Attempt:   1,
		StartedAt: time.Now().UTC(),
		Outcome:   OutcomePending,
	}
}

// recordAttempt appends an attempt to the run history.
func (r *Run) recordAttempt(started time.Time, err error) {
	r.History = append(r.History, Attempt{
		Number:    r.Attempt,
		StartedAt: started,
		Duration:  time.Since(started),
		Err:       err,
	})
	r.Err = err
}
