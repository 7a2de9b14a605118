// Package resources computes memory and core-count overrides for recovery workflows.
//
// Policies share one grammar:
//
//	2000          absolute value
//	+500          additive increase
//	+20%          percentage increase
//	TaskA,TaskB:+500
//
// The optional task prefix freezes the listed tasks at their current values; every
// other task receives the override.
package resources

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

// Kind describes how a policy value is applied.
type Kind int

const (
	KindAbsolute Kind = iota
	KindAdditive
	KindPercent
)

// Policy is a parsed resource policy.
type Policy struct {
	Kind   Kind
	Amount int
	Frozen map[string]struct{}
}

// ParsePolicy parses a policy string of the form "[tasks:]value".
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Policy{}, fmt.Errorf("%w: empty policy", domain.ErrInvalidOption)
	}

	p := Policy{Frozen: make(map[string]struct{})}
	value := s
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		for _, t := range strings.Split(s[:idx], ",") {
			if t = strings.TrimSpace(t); t != "" {
				p.Frozen[t] = struct{}{}
			}
		}
		value = strings.TrimSpace(s[idx+1:])
	}

	var digits string
	switch {
	case strings.HasPrefix(value, "+") && strings.HasSuffix(value, "%"):
		p.Kind = KindPercent
		digits = value[1 : len(value)-1]
	case strings.HasPrefix(value, "+"):
		p.Kind = KindAdditive
		digits = value[1:]
	default:
		p.Kind = KindAbsolute
		digits = value
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return Policy{}, fmt.Errorf("%w: policy value %q", domain.ErrInvalidOption, value)
	}
	if p.Kind == KindAbsolute && n == 0 {
		return Policy{}, fmt.Errorf("%w: absolute policy must be positive", domain.ErrInvalidOption)
	}
	p.Amount = n
	return p, nil
}

// CheckPolicy validates a policy string without using the result.
func CheckPolicy(s string) error {
	_, err := ParsePolicy(s)
	return err
}

// IsFrozen reports whether the task keeps its current value.
func (p Policy) IsFrozen(task string) bool {
	_, ok := p.Frozen[task]
	return ok
}

// Relative reports whether the policy needs an original value.
func (p Policy) Relative() bool {
	return p.Kind != KindAbsolute
}

// Apply computes the new value for an original value.
func (p Policy) Apply(original int) int {
	switch p.Kind {
	case KindAdditive:
		return original + p.Amount
	case KindPercent:
		return int(math.Round(float64(original) * (1 + float64(p.Amount)/100)))
	default:
		return p.Amount
	}
}
