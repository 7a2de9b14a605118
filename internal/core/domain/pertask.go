package domain

import (
	"bytes"
	"encoding/json"
)

// PerTask holds either a single value for the whole workflow or one value per task.
// Task chains use the per-task form, single-task workflows the scalar form.
type PerTask[T any] struct {
	Value T
	Tasks map[string]T
}

// Scalar wraps a single workflow-wide value.
func Scalar[T any](v T) *PerTask[T] {
	return &PerTask[T]{Value: v}
}

// ByTask wraps a per-task mapping.
func ByTask[T any](m map[string]T) *PerTask[T] {
	return &PerTask[T]{Tasks: m}
}

// IsPerTask reports whether the value is a per-task mapping.
func (p *PerTask[T]) IsPerTask() bool {
	return p != nil && p.Tasks != nil
}

func (p PerTask[T]) MarshalJSON() ([]byte, error) {
	if p.Tasks != nil {
		return json.Marshal(p.Tasks)
	}
	return json.Marshal(p.Value)
}

func (p *PerTask[T]) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var m map[string]T
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		p.Tasks = m
		return nil
	}
	return json.Unmarshal(data, &p.Value)
}
