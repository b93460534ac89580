package ctl

import "fmt"

// ConstraintType selects the active optimization mode.
type ConstraintType int

const (
	// Performance treats the goal as a performance floor to meet while
	// minimizing cost.
	Performance ConstraintType = iota
	// Power treats the goal as a cost ceiling to stay under while
	// maximizing speedup.
	Power
)

// String returns the lowercase name of the constraint type.
func (t ConstraintType) String() string {
	switch t {
	case Performance:
		return "performance"
	case Power:
		return "power"
	default:
		return fmt.Sprintf("ConstraintType(%d)", int(t))
	}
}

// ParseConstraintType maps a string to a ConstraintType.
func ParseConstraintType(s string) (ConstraintType, error) {
	switch s {
	case "performance", "perf":
		return Performance, nil
	case "power":
		return Power, nil
	default:
		return 0, fmt.Errorf("unknown constraint type %q (want performance or power)", s)
	}
}

// Constraint is the active goal. Replacing it on a live controller takes
// effect at the next decision boundary, never mid-cycle.
type Constraint struct {
	Type ConstraintType
	Goal float64 // must be > 0
}

// Validate checks the constraint's preconditions.
func (c Constraint) Validate() error {
	if c.Type != Performance && c.Type != Power {
		return fmt.Errorf("unknown constraint type %d", int(c.Type))
	}
	if c.Goal <= 0 {
		return fmt.Errorf("constraint goal must be > 0, got %g", c.Goal)
	}
	return nil
}
