// Package ctl implements a closed-loop performance/power controller over a
// table of discrete control states.
//
// # Reading Guide
//
// Start with these three files to understand the control loop:
//   - state.go: ControlState and the immutable StateTable catalog
//   - history.go: the bounded observation window and smoothed metrics
//   - controller.go: the per-iteration entry point, decision cadence, and
//     actuation dispatch
//
// # Architecture
//
// Each call to Controller.Step records one observation sample. Every Period
// iterations the controller probes the live state through the caller-supplied
// Actuator, runs the best-fit search in engine.go against the smoothed window,
// substitutes an idle-capable variant when warranted (idle.go), and dispatches
// Apply exactly once. Decision-trace persistence lives in the ctl/trace
// sub-package and is optional.
//
// # Key Interfaces
//
// The single extension point is Actuator: a two-method capability interface
// supplied at construction that performs the real state transition and probes
// the currently active state. Implementations carry whatever context they
// need in their receiver.
//
// The controller is not goroutine-safe; callers serialize access to one
// instance, or run one instance per controlled subsystem.
package ctl
