package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/infra/storage"
)

const runColumns = `id, task_name, workflow_name, recovery_name, state, team,
	site_whitelist::text AS site_whitelist, error, created_at, updated_at`

// runRow maps a recovery_runs row. The whitelist is selected as its text form
// and parsed by pq.
type runRow struct {
	ID            string         `db:"id"`
	TaskName      string         `db:"task_name"`
	WorkflowName  string         `db:"workflow_name"`
	RecoveryName  string         `db:"recovery_name"`
	State         string         `db:"state"`
	Team          string         `db:"team"`
	SiteWhitelist pq.StringArray `db:"site_whitelist"`
	Error         string         `db:"error"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r runRow) toDomain() domain.RecoveryRun {
	return domain.RecoveryRun{
		ID:            r.ID,
		TaskName:      r.TaskName,
		WorkflowName:  r.WorkflowName,
		RecoveryName:  r.RecoveryName,
		State:         r.State,
		Team:          r.Team,
		SiteWhitelist: []string(r.SiteWhitelist),
		Error:         r.Error,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Record upserts a run. created_at is kept from the first insert.
func (r *RunRepo) Record(ctx context.Context, run domain.RecoveryRun) error {
	whitelist := run.SiteWhitelist
	if whitelist == nil {
		whitelist = []string{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recovery_runs
			(id, task_name, workflow_name, recovery_name, state, team, site_whitelist, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			task_name      = EXCLUDED.task_name,
			workflow_name  = EXCLUDED.workflow_name,
			recovery_name  = EXCLUDED.recovery_name,
			state          = EXCLUDED.state,
			team           = EXCLUDED.team,
			site_whitelist = EXCLUDED.site_whitelist,
			error          = EXCLUDED.error,
			updated_at     = EXCLUDED.updated_at`,
		run.ID, run.TaskName, run.WorkflowName, run.RecoveryName, run.State, run.Team,
		pq.Array(whitelist), run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.RecoveryRun, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM recovery_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run := row.toDomain()
	return &run, nil
}

// List returns runs, newest first.
func (r *RunRepo) List(ctx context.Context, filter storage.RunFilter) ([]domain.RecoveryRun, error) {
	query := `SELECT ` + runColumns + ` FROM recovery_runs WHERE ($1 = '' OR state = $1)
		ORDER BY created_at DESC, id`
	args := []any{filter.State}
	if filter.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, filter.Limit)
	}
	return r.selectRuns(ctx, query, args...)
}

// Pending returns runs with a recovery that no run has assigned yet.
func (r *RunRepo) Pending(ctx context.Context) ([]domain.RecoveryRun, error) {
	query := `SELECT ` + runColumns + ` FROM recovery_runs
		WHERE recovery_name <> ''
		  AND state NOT IN ($1, $2)
		  AND recovery_name NOT IN (
			SELECT recovery_name FROM recovery_runs WHERE state = $1
		  )
		ORDER BY created_at DESC, id`
	return r.selectRuns(ctx, query, storage.StateAssigned, storage.StateDryRun)
}

func (r *RunRepo) selectRuns(ctx context.Context, query string, args ...any) ([]domain.RecoveryRun, error) {
	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]domain.RecoveryRun, len(rows))
	for i, row := range rows {
		runs[i] = row.toDomain()
	}
	return runs, nil
}
