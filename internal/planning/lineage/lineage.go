// Package lineage walks the resubmission chain of a recovery workflow.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

// MaxDepth bounds the number of resubmission hops followed above the original workflow.
const MaxDepth = 16

// Fetcher returns a fresh descriptor for a workflow name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (*domain.Workflow, error)
}

// Resolve returns the original workflow the recovery was created from and the first
// ancestor that is not itself a resubmission.
//
// The ancestor is nil when the chain is broken: a resubmission without an original
// request name, or a link the provider no longer knows.
func Resolve(ctx context.Context, f Fetcher, recovery *domain.Workflow) (original, ancestor *domain.Workflow, err error) {
	if recovery.OriginalRequestName == "" {
		return nil, nil, fmt.Errorf("%w: %s has no OriginalRequestName", domain.ErrMissingLineage, recovery.Name)
	}

	original, err = f.Fetch(ctx, recovery.OriginalRequestName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch original workflow %s: %w", recovery.OriginalRequestName, err)
	}

	visited := map[string]struct{}{recovery.Name: {}, original.Name: {}}
	ancestor = original
	for depth := 0; ancestor.IsResubmission(); depth++ {
		next := ancestor.OriginalRequestName
		if next == "" {
			slog.Warn("Resubmission chain is broken", "workflow", ancestor.Name)
			return original, nil, nil
		}
		if _, seen := visited[next]; seen {
			return nil, nil, fmt.Errorf("%w: cycle at %s", domain.ErrInvalidLineage, next)
		}
		if depth >= MaxDepth {
			return nil, nil, fmt.Errorf("%w: chain deeper than %d", domain.ErrInvalidLineage, MaxDepth)
		}
		visited[next] = struct{}{}

		ancestor, err = f.Fetch(ctx, next)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			slog.Warn("Ancestor workflow not found", "workflow", next)
			return original, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch ancestor %s: %w", next, err)
		}
	}
	return original, ancestor, nil
}
