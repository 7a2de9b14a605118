package storage

import (
	"context"
	"errors"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run doesn't exist
	ErrRunNotFound = errors.New("run not found")
)

// Run states that close a recovery. Any other state with a recovery name
// still needs an assignment.
const (
	StateAssigned = "assigned"
	StateDryRun   = "dry_run"
)

// RunFilter narrows a run listing.
type RunFilter struct {
	// State keeps only runs in this state when set
	State string
	// Limit caps the number of runs returned; 0 means no cap
	Limit int
}

// RunRepository is the ledger of orchestration runs
type RunRepository interface {
	// Record inserts or updates a run by ID
	Record(ctx context.Context, run domain.RecoveryRun) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*domain.RecoveryRun, error)

	// List returns runs, newest first
	List(ctx context.Context, filter RunFilter) ([]domain.RecoveryRun, error)

	// Pending returns runs whose recovery was created but never assigned
	Pending(ctx context.Context) ([]domain.RecoveryRun, error)
}
