package ctl

import "github.com/sirupsen/logrus"

// chooseState runs the per-period best-fit search. It is memoryless and
// deterministic: identical (table, constraint, smoothed metrics, current id)
// always yield the identical chosen id. Ties break toward the lowest id.
//
// The table's speedup/cost values are normalized to state 0, so the required
// scaling factor computed against the current state is translated into an
// absolute target by scaling the current state's own speedup (or cost).
//
// A zero smoothed metric (empty window, or a stalled subsystem) drives the
// target to +Inf and falls through to the same best-effort fallbacks as an
// unreachable goal; no special-case branch is needed.
func chooseState(t *StateTable, c Constraint, smoothedPerf, smoothedPower float64, currentID uint32) uint32 {
	cur := t.State(currentID)
	states := t.States()

	switch c.Type {
	case Power:
		// Cost ceiling: largest speedup whose cost fits the budget.
		budget := cur.Cost * (c.Goal / smoothedPower)
		chosen, found := -1, false
		for i, s := range states {
			if s.Cost > budget {
				continue
			}
			if !found || s.Speedup > states[chosen].Speedup {
				chosen, found = i, true
			}
		}
		if found {
			logrus.Debugf("[decide] power budget=%.4g chose state %d", budget, chosen)
			return states[chosen].ID
		}
		// No state fits the budget: best effort, cheapest state.
		cheapest := 0
		for i, s := range states {
			if s.Cost < states[cheapest].Cost {
				cheapest = i
			}
		}
		logrus.Debugf("[decide] power budget=%.4g unreachable, falling back to state %d", budget, cheapest)
		return states[cheapest].ID

	default: // Performance
		// Performance floor: cheapest state meeting the target speedup.
		target := cur.Speedup * (c.Goal / smoothedPerf)
		chosen, found := -1, false
		for i, s := range states {
			if s.Speedup < target {
				continue
			}
			if !found || s.Cost < states[chosen].Cost {
				chosen, found = i, true
			}
		}
		if found {
			logrus.Debugf("[decide] perf target=%.4g chose state %d", target, chosen)
			return states[chosen].ID
		}
		// Goal unreachable: best effort, fastest state.
		fastest := 0
		for i, s := range states {
			if s.Speedup > states[fastest].Speedup {
				fastest = i
			}
		}
		logrus.Debugf("[decide] perf target=%.4g unreachable, falling back to state %d", target, fastest)
		return states[fastest].ID
	}
}
