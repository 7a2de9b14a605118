// Package exceptions pins workflows that match configured patterns back to their
// original footprint.
//
// Rules map a descriptor key to a pattern. The descriptor tree is searched depth
// first; the first key whose value contains the pattern marks the workflow as an
// exception, wherever it sits in the tree.
package exceptions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/planning/sites"
)

// Footprinter recomputes the compute sites the original workflow ran the task at.
type Footprinter interface {
	Footprint(ctx context.Context, recovery *domain.Workflow, catalog *sites.Catalog) ([]string, error)
}

// Match reports whether any mapping in the tree holds a rule key whose value
// contains the rule pattern. Only mappings are descended into.
func Match(tree Value, rules map[string]string) bool {
	if len(rules) == 0 {
		return false
	}

	stack := []Value{tree}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.Kind != KindMap {
			continue
		}

		keys := node.keys()
		for _, k := range keys {
			child := node.Map[k]
			if pattern, ok := rules[k]; ok && child.Contains(pattern) {
				slog.Debug("Exception rule matched", "key", k, "pattern", pattern)
				return true
			}
		}
		// reverse push keeps the walk in key order
		for i := len(keys) - 1; i >= 0; i-- {
			if child := node.Map[keys[i]]; child.Kind == KindMap {
				stack = append(stack, child)
			}
		}
	}
	return false
}

// Engine overrides assignment parameters for exceptional workflows.
type Engine struct {
	footprint Footprinter
}

func NewEngine(f Footprinter) *Engine {
	return &Engine{footprint: f}
}

// Apply returns params unchanged unless the recovery descriptor matches a rule. On a
// match the site whitelist is replaced with the ready part of the original footprint.
func (e *Engine) Apply(
	ctx context.Context,
	params *domain.AssignmentParameters,
	recovery *domain.Workflow,
	rules map[string]string,
	selector *sites.Selector,
) (*domain.AssignmentParameters, error) {
	if len(rules) == 0 || recovery == nil {
		return params, nil
	}

	tree, err := FromAny(recovery.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor of %s: %w", recovery.Name, err)
	}
	if !Match(tree, rules) {
		return params, nil
	}
	slog.Info("Found exception", "workflow", recovery.Name)

	footprint, err := e.footprint.Footprint(ctx, recovery, selector.Catalog())
	if err != nil {
		return nil, err
	}
	check := selector.CheckSites(footprint)
	if len(check.Usable) == 0 {
		return nil, fmt.Errorf("%w: exception footprint of %s has no ready site", domain.ErrNoSitesAvailable, recovery.Name)
	}

	out := *params
	out.SiteWhitelist = check.Usable
	return &out, nil
}
