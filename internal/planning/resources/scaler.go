package resources

import (
	"fmt"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

// perCoreEfficiency is the share of the per-core memory a hyperthreaded extra core needs.
const perCoreEfficiency = 0.6

// Multicore is the result of rescaling the core count of a task chain.
type Multicore struct {
	Cores        map[string]int
	Memory       map[string]int
	TimePerEvent map[string]float64
}

// ComputeMemory applies a memory policy to a single-task workflow.
// It returns false when no policy is set.
func ComputeMemory(original int, policy string) (int, bool, error) {
	if policy == "" {
		return 0, false, nil
	}
	p, err := ParsePolicy(policy)
	if err != nil {
		return 0, false, err
	}
	if p.Relative() && original <= 0 {
		return 0, false, fmt.Errorf("%w: relative memory policy %q needs the original memory", domain.ErrInvalidOption, policy)
	}
	return p.Apply(original), true, nil
}

// MemoryOverrides applies a memory policy to every task of a chain.
// Frozen tasks keep their current memory.
func MemoryOverrides(tasks []domain.Task, policy string) (map[string]int, error) {
	p, err := ParsePolicy(policy)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if p.IsFrozen(t.Name) {
			out[t.Name] = t.Memory
			continue
		}
		if p.Relative() && t.Memory <= 0 {
			return nil, fmt.Errorf("%w: task %s has no memory to scale", domain.ErrInvalidOption, t.Name)
		}
		out[t.Name] = p.Apply(t.Memory)
	}
	return out, nil
}

// MulticoreOverrides sets the core count of every non-frozen task and redistributes
// memory and time per event accordingly.
//
// Each added core needs 60% of the current per-core memory. Time per event shrinks by
// the ratio of new to old cores. When memoryPolicy is set it is applied first and the
// core rescaling starts from its result.
func MulticoreOverrides(tasks []domain.Task, policy, memoryPolicy string) (*Multicore, error) {
	p, err := ParsePolicy(policy)
	if err != nil {
		return nil, err
	}
	if p.Kind != KindAbsolute {
		return nil, fmt.Errorf("%w: multicore policy must be absolute: %q", domain.ErrInvalidOption, policy)
	}

	memory := make(map[string]int, len(tasks))
	if memoryPolicy != "" {
		if memory, err = MemoryOverrides(tasks, memoryPolicy); err != nil {
			return nil, err
		}
	} else {
		for _, t := range tasks {
			memory[t.Name] = t.Memory
		}
	}

	out := &Multicore{
		Cores:        make(map[string]int, len(tasks)),
		Memory:       make(map[string]int, len(tasks)),
		TimePerEvent: make(map[string]float64, len(tasks)),
	}
	for _, t := range tasks {
		mem := memory[t.Name]
		oldCores := t.Multicore
		if oldCores <= 0 {
			oldCores = 1
		}

		if p.IsFrozen(t.Name) {
			out.Cores[t.Name] = oldCores
			out.Memory[t.Name] = mem
			out.TimePerEvent[t.Name] = t.TimePerEvent
			continue
		}

		newCores := p.Amount
		perCore := int(perCoreEfficiency * float64(mem) / float64(oldCores))
		out.Cores[t.Name] = newCores
		out.Memory[t.Name] = mem + (newCores-oldCores)*perCore
		out.TimePerEvent[t.Name] = t.TimePerEvent / (float64(newCores) / float64(oldCores))
	}
	return out, nil
}

// CoreCount parses a multicore policy for a single-task workflow.
func CoreCount(policy string) (int, error) {
	p, err := ParsePolicy(policy)
	if err != nil {
		return 0, err
	}
	if p.Kind != KindAbsolute {
		return 0, fmt.Errorf("%w: multicore policy must be absolute: %q", domain.ErrInvalidOption, policy)
	}
	return p.Amount, nil
}
