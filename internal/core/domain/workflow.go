package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type RequestType string

const (
	RequestTypeTaskChain    RequestType = "TaskChain"
	RequestTypeResubmission RequestType = "Resubmission"
	RequestTypeReReco       RequestType = "ReReco"
)

type Status string

const (
	StatusNew                Status = "new"
	StatusAssignmentApproved Status = "assignment-approved"
	StatusAssigned           Status = "assigned"
)

// Task is one step of a workflow with its own resource profile.
type Task struct {
	Name         string
	Memory       int
	Multicore    int
	TimePerEvent float64
}

// Workflow is a read-only snapshot of a processing request as reported by the
// workflow-management service. A fresh snapshot is fetched whenever newer data is needed.
type Workflow struct {
	Name                string
	RequestType         RequestType
	Status              Status
	OriginalRequestName string
	InitialTaskPath     string
	Tasks               []Task
	Memory              int
	Multicore           int
	MergedLFNBase       string
	Team                string
	Campaign            string
	AcquisitionEra      *PerTask[string]
	ProcessingString    *PerTask[string]
	ProcessingVersion   int
	TrustPUSitelists    *bool

	// Raw is the full descriptor tree, used by exception matching.
	Raw map[string]any
}

// IsTaskChain reports whether the request itself is a task chain.
func (w *Workflow) IsTaskChain() bool {
	return w != nil && w.RequestType == RequestTypeTaskChain
}

// IsResubmission reports whether the request is a recovery of another request.
func (w *Workflow) IsResubmission() bool {
	return w != nil && w.RequestType == RequestTypeResubmission
}

// WorkflowNameFromTask extracts the workflow name from a task path such as
// "/wf_name/Task1/Merge".
func WorkflowNameFromTask(taskPath string) (string, error) {
	parts := strings.Split(taskPath, "/")
	if len(parts) < 3 || parts[0] != "" || parts[1] == "" {
		return "", fmt.Errorf("%w: malformed task path %q", ErrInvalidOption, taskPath)
	}
	return parts[1], nil
}

// DecodeWorkflow builds a Workflow from a decoded request document.
func DecodeWorkflow(name string, raw map[string]any) (*Workflow, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}

	wf := &Workflow{
		Name:                name,
		RequestType:         RequestType(stringField(raw, "RequestType")),
		Status:              Status(stringField(raw, "RequestStatus")),
		OriginalRequestName: stringField(raw, "OriginalRequestName"),
		InitialTaskPath:     stringField(raw, "InitialTaskPath"),
		MergedLFNBase:       stringField(raw, "MergedLFNBase"),
		Team:                stringField(raw, "Team"),
		Campaign:            stringField(raw, "Campaign"),
		Memory:              intField(raw, "Memory"),
		Multicore:           intField(raw, "Multicore"),
		ProcessingVersion:   intField(raw, "ProcessingVersion"),
		Raw:                 raw,
	}
	if n, ok := raw["RequestName"].(string); ok && n != "" {
		wf.Name = n
	}
	if v, ok := raw["TrustPUSitelists"].(bool); ok {
		wf.TrustPUSitelists = &v
	}

	var err error
	if wf.AcquisitionEra, err = perTaskString(raw["AcquisitionEra"]); err != nil {
		return nil, fmt.Errorf("AcquisitionEra: %w", err)
	}
	if wf.ProcessingString, err = perTaskString(raw["ProcessingString"]); err != nil {
		return nil, fmt.Errorf("ProcessingString: %w", err)
	}

	wf.Tasks = decodeTasks(raw)
	return wf, nil
}

// decodeTasks walks Task1..TaskN until the first missing key.
func decodeTasks(raw map[string]any) []Task {
	var tasks []Task
	for i := 1; ; i++ {
		t, ok := raw[fmt.Sprintf("Task%d", i)].(map[string]any)
		if !ok {
			break
		}
		task := Task{
			Name:         stringField(t, "TaskName"),
			Memory:       intField(t, "Memory"),
			Multicore:    intField(t, "Multicore"),
			TimePerEvent: floatField(t, "TimePerEvent"),
		}
		// Chains inherit top-level values when a task leaves them unset.
		if task.Memory == 0 {
			task.Memory = intField(raw, "Memory")
		}
		if task.Multicore == 0 {
			task.Multicore = intField(raw, "Multicore")
		}
		if task.Multicore == 0 {
			task.Multicore = 1
		}
		if task.TimePerEvent == 0 {
			task.TimePerEvent = floatField(raw, "TimePerEvent")
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func perTaskString(v any) (*PerTask[string], error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return &PerTask[string]{Value: val}, nil
	case map[string]any:
		tasks := make(map[string]string, len(val))
		for k, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("task %s: expected string, got %T", k, item)
			}
			tasks[k] = s
		}
		return &PerTask[string]{Tasks: tasks}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

// TaskNames returns the names of the tasks in chain order.
func (w *Workflow) TaskNames() []string {
	names := make([]string, 0, len(w.Tasks))
	for _, t := range w.Tasks {
		names = append(names, t.Name)
	}
	return names
}

// SortedKeys returns the keys of a string set in order.
func SortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
