// Package compliance aggregates ingested service records against monthly
// goals and produces rankings and duplicate audits for compliance reporting.
package compliance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidScale = errors.New("period scale must be one of 1, 2, 3, 6 or 12")
	ErrInvalidGoal  = errors.New("invalid goal")
)

// ValidScales lists the accepted period multipliers, in months.
var ValidScales = []int{1, 2, 3, 6, 12}

// ValidScale reports whether n is an accepted period multiplier.
func ValidScale(n int) bool {
	for _, s := range ValidScales {
		if s == n {
			return true
		}
	}
	return false
}

// Goal is a configured monthly target for one service type.
type Goal struct {
	ServiceType string `json:"service_type" yaml:"service_type"`
	MonthlyGoal int    `json:"monthly_goal" yaml:"monthly_goal"`
	Active      bool   `json:"active" yaml:"active"`
}

// ValidateGoals checks that every goal names a service type once and has a
// non-negative target.
func ValidateGoals(goals []Goal) error {
	seen := make(map[string]bool, len(goals))
	for i, g := range goals {
		t := strings.TrimSpace(g.ServiceType)
		if t == "" {
			return fmt.Errorf("%w: goal %d has no service type", ErrInvalidGoal, i)
		}
		if g.MonthlyGoal < 0 {
			return fmt.Errorf("%w: goal for %s is negative", ErrInvalidGoal, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: service type %s listed twice", ErrInvalidGoal, t)
		}
		seen[t] = true
	}
	return nil
}

// DefaultGoals creates an inactive zero goal for every service type, used to
// seed configuration from a freshly loaded catalog.
func DefaultGoals(serviceTypes []string) []Goal {
	goals := make([]Goal, 0, len(serviceTypes))
	for _, t := range serviceTypes {
		goals = append(goals, Goal{ServiceType: t})
	}
	return goals
}

func activeTypes(goals []Goal) map[string]bool {
	active := make(map[string]bool, len(goals))
	for _, g := range goals {
		if g.Active {
			active[g.ServiceType] = true
		}
	}
	return active
}
