package ctl

// Actuator is the caller-supplied boundary to the controlled system. Both
// methods are synchronous and are only ever called from inside
// Controller.Step, so implementations need no internal locking as long as the
// caller serializes Step calls. Implementations carry whatever context they
// need (device handles, sysfs paths, simulation state) in their receiver.
type Actuator interface {
	// Apply performs the actual transition to state newID. firstApply is
	// true only on the controller's very first dispatch, signalling that
	// lastID carries no meaningful prior state. Failures are the actuator's
	// own responsibility; nothing is reported back and the controller never
	// retries.
	Apply(states []ControlState, newID, lastID uint32, idleNs uint64, firstApply bool)

	// CurrentState probes the currently active state before a decision. An
	// error means the state cannot be determined; the controller then keeps
	// its last successfully known id rather than trusting a stale probe.
	CurrentState(states []ControlState) (uint32, error)
}
