package ctl

import "fmt"

// ControlState describes one discrete, fully-specified operating point.
// Speedup and Cost are normalized to state 0.
//
// IdlePartner is meaningful only for idle states: it names a non-idling state
// with the exact same speedup/cost profile. A state is an idle state iff
// IdlePartner differs from its own ID; non-idle states set IdlePartner to
// their own ID.
type ControlState struct {
	ID          uint32  `yaml:"id"`
	Speedup     float64 `yaml:"speedup"`
	Cost        float64 `yaml:"cost"`
	IdlePartner uint32  `yaml:"idle_partner"`
}

// IsIdle reports whether the state is an idle variant of another state.
func (s ControlState) IsIdle() bool {
	return s.IdlePartner != s.ID
}

// StateTable is the immutable catalog of available control states, indexed by
// dense ids 0..Len()-1. It is owned exclusively by the Controller for its
// lifetime and is never mutated after construction.
type StateTable struct {
	states []ControlState
}

// NewStateTable validates and orders the supplied states by id.
// Ids must be dense 0..n-1 with no duplicates, speedup and cost must be
// positive, and idle partners must name an in-range, non-idle state.
func NewStateTable(states []ControlState) (*StateTable, error) {
	n := len(states)
	if n == 0 {
		return nil, fmt.Errorf("state table must contain at least one state")
	}
	ordered := make([]ControlState, n)
	seen := make([]bool, n)
	for _, s := range states {
		if int(s.ID) >= n {
			return nil, fmt.Errorf("state id %d outside dense range 0..%d", s.ID, n-1)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate state id %d", s.ID)
		}
		if s.Speedup <= 0 {
			return nil, fmt.Errorf("state %d: speedup must be > 0, got %g", s.ID, s.Speedup)
		}
		if s.Cost <= 0 {
			return nil, fmt.Errorf("state %d: cost must be > 0, got %g", s.ID, s.Cost)
		}
		if int(s.IdlePartner) >= n {
			return nil, fmt.Errorf("state %d: idle partner %d outside dense range 0..%d", s.ID, s.IdlePartner, n-1)
		}
		seen[s.ID] = true
		ordered[s.ID] = s
	}
	for _, s := range ordered {
		if s.IsIdle() && ordered[s.IdlePartner].IsIdle() {
			return nil, fmt.Errorf("state %d: idle partner %d is itself an idle state", s.ID, s.IdlePartner)
		}
	}
	return &StateTable{states: ordered}, nil
}

// Len returns the number of states in the table.
func (t *StateTable) Len() int {
	return len(t.states)
}

// State returns the state with the given id. The id must be in range.
func (t *StateTable) State(id uint32) ControlState {
	return t.states[id]
}

// States returns the states in id order. Callers must treat the returned
// slice as read-only.
func (t *StateTable) States() []ControlState {
	return t.states
}

// IdleVariantOf returns the id of the idle state paired with the given
// non-idle state, preferring the lowest id when several exist. The second
// return value is false when no idle variant exists for that operating point.
func (t *StateTable) IdleVariantOf(id uint32) (uint32, bool) {
	for _, s := range t.states {
		if s.IsIdle() && s.IdlePartner == id {
			return s.ID, true
		}
	}
	return 0, false
}
