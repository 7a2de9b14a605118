package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

// RecoveryRequest is the state of one orchestration. It is owned by a single
// call and is not safe for concurrent use.
type RecoveryRequest struct {
	RunID        string
	TaskName     string
	WorkflowName string
	Source       *domain.Workflow
	Options      domain.Options

	// RecoveryName is set exactly once, when creation succeeds or the caller
	// supplies an existing recovery.
	RecoveryName string
	Parameters   *domain.AssignmentParameters

	State     State
	History   []Transition
	Err       error
	CreatedAt time.Time
}

func newRequest(taskName string, opts domain.Options) *RecoveryRequest {
	return &RecoveryRequest{
		RunID:     uuid.NewString(),
		TaskName:  taskName,
		Options:   opts,
		State:     StateInitial,
		CreatedAt: time.Now(),
	}
}

func (r *RecoveryRequest) transition(to State, reason string) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.History = append(r.History, NewTransition(r.State, to, reason))
	r.State = to
	return nil
}

func (r *RecoveryRequest) setRecoveryName(name string) error {
	if r.RecoveryName != "" {
		return fmt.Errorf("%w: recovery name already set to %s", domain.ErrInvalidState, r.RecoveryName)
	}
	r.RecoveryName = name
	return nil
}

// Run returns the ledger record for the request.
func (r *RecoveryRequest) Run() domain.RecoveryRun {
	run := domain.RecoveryRun{
		ID:           r.RunID,
		TaskName:     r.TaskName,
		WorkflowName: r.WorkflowName,
		RecoveryName: r.RecoveryName,
		State:        string(r.State),
		Team:         r.Options.Team,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    time.Now(),
	}
	if r.Parameters != nil {
		run.Team = r.Parameters.Team
		run.SiteWhitelist = r.Parameters.SiteWhitelist
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}
