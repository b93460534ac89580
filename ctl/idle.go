package ctl

// resolveIdle maps the engine's chosen id to its idle-capable variant when the
// observed idle fraction exceeds the threshold. It is a pure id-to-id lookup:
// idle variants share their partner's exact speedup/cost profile, so the
// engine's accounting is untouched. Resolving an id that is already idle
// returns it unchanged.
func resolveIdle(t *StateTable, chosenID uint32, idleFraction, threshold float64, disabled bool) uint32 {
	if disabled || idleFraction <= threshold {
		return chosenID
	}
	if t.State(chosenID).IsIdle() {
		return chosenID
	}
	if idleID, ok := t.IdleVariantOf(chosenID); ok {
		return idleID
	}
	return chosenID
}
