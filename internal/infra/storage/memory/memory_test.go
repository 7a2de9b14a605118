package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/infra/storage"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func run(id, recovery, state string, age time.Duration) domain.RecoveryRun {
	return domain.RecoveryRun{
		ID:           id,
		TaskName:     "/wf/Task1",
		WorkflowName: "wf",
		RecoveryName: recovery,
		State:        state,
		CreatedAt:    base.Add(-age),
		UpdatedAt:    base,
	}
}

func TestRunRepo_RecordAndGet(t *testing.T) {
	repo := NewRunRepo()
	ctx := context.Background()

	first := run("r1", "", "initial", time.Hour)
	if err := repo.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}

	updated := run("r1", "acdc_wf", "recovery_created", 0)
	updated.SiteWhitelist = []string{"T2_CH_CERN"}
	if err := repo.Record(ctx, updated); err != nil {
		t.Fatalf("Record: %v", err)
	}
	updated.SiteWhitelist[0] = "mutated"

	got, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "recovery_created" || got.RecoveryName != "acdc_wf" {
		t.Errorf("unexpected run: %+v", got)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v", got.CreatedAt)
	}
	if got.SiteWhitelist[0] != "T2_CH_CERN" {
		t.Errorf("stored whitelist aliases caller slice: %v", got.SiteWhitelist)
	}
}

func TestRunRepo_GetMissing(t *testing.T) {
	if _, err := NewRunRepo().Get(context.Background(), "nope"); !errors.Is(err, storage.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunRepo_List(t *testing.T) {
	repo := NewRunRepo()
	ctx := context.Background()
	_ = repo.Record(ctx, run("old", "a", "assigned", 3*time.Hour))
	_ = repo.Record(ctx, run("mid", "b", "failed", 2*time.Hour))
	_ = repo.Record(ctx, run("new", "c", "assigned", time.Hour))

	all, _ := repo.List(ctx, storage.RunFilter{})
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Errorf("List order = %v", ids(all))
	}

	assigned, _ := repo.List(ctx, storage.RunFilter{State: "assigned", Limit: 1})
	if len(assigned) != 1 || assigned[0].ID != "new" {
		t.Errorf("filtered List = %v", ids(assigned))
	}
}

func TestRunRepo_Pending(t *testing.T) {
	repo := NewRunRepo()
	ctx := context.Background()
	_ = repo.Record(ctx, run("created", "acdc_a", "recovery_created", time.Hour))
	_ = repo.Record(ctx, run("assign-failed", "acdc_b", "failed", time.Hour))
	_ = repo.Record(ctx, run("create-failed", "", "failed", time.Hour))
	_ = repo.Record(ctx, run("dry", "acdc_c", "dry_run", time.Hour))
	// acdc_d failed once and was assigned by a later run.
	_ = repo.Record(ctx, run("retry-failed", "acdc_d", "failed", 2*time.Hour))
	_ = repo.Record(ctx, run("retry-ok", "acdc_d", "assigned", time.Hour))

	pending, err := repo.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	got := ids(pending)
	if len(got) != 2 || got[0] != "assign-failed" || got[1] != "created" {
		t.Errorf("Pending = %v, want [assign-failed created]", got)
	}
}

func ids(runs []domain.RecoveryRun) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
