package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/infra/storage"
)

// RunRepo keeps the run ledger in process memory.
type RunRepo struct {
	runs map[string]domain.RecoveryRun
	mu   sync.RWMutex
}

func NewRunRepo() *RunRepo {
	return &RunRepo{runs: make(map[string]domain.RecoveryRun)}
}

func (r *RunRepo) Record(ctx context.Context, run domain.RecoveryRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.SiteWhitelist = slices.Clone(run.SiteWhitelist)
	if prev, ok := r.runs[run.ID]; ok {
		run.CreatedAt = prev.CreatedAt
	}
	r.runs[run.ID] = run
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.RecoveryRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	return &run, nil
}

func (r *RunRepo) List(ctx context.Context, filter storage.RunFilter) ([]domain.RecoveryRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.RecoveryRun
	for _, run := range r.runs {
		if filter.State != "" && run.State != filter.State {
			continue
		}
		out = append(out, run)
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *RunRepo) Pending(ctx context.Context) ([]domain.RecoveryRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assigned := make(map[string]bool)
	for _, run := range r.runs {
		if run.State == storage.StateAssigned {
			assigned[run.RecoveryName] = true
		}
	}

	var out []domain.RecoveryRun
	for _, run := range r.runs {
		if run.RecoveryName == "" || assigned[run.RecoveryName] {
			continue
		}
		if run.State == storage.StateDryRun {
			continue
		}
		out = append(out, run)
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(runs []domain.RecoveryRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}
