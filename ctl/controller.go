package ctl

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/statetune/statetune/ctl/trace"
)

// Controller is the aggregate root of one control loop: the active
// constraint, the state table, the observation window, and the current/last
// state ids. One instance per controlled subsystem; not goroutine-safe.
type Controller struct {
	cfg        Config
	constraint Constraint
	table      *StateTable
	history    *History
	actuator   Actuator
	sink       *trace.Log

	currentID    uint32
	lastID       uint32
	sincePeriod  uint32
	pendingFirst bool
	closed       bool
	now          func() time.Time
}

// Option customizes a Controller at construction.
type Option func(*Controller)

// WithTraceLog attaches an append-only record sink. Every Step mirrors its
// sample there, independent of whether a decision occurs that iteration.
// Close flushes and releases the sink.
func WithTraceLog(sink *trace.Log) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithClock overrides the wall clock used to timestamp samples. For tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New validates every precondition up front and constructs a Controller.
// On any violation it returns an error and no partial controller: goal must
// be > 0, the table must be valid and non-empty, period must be > 0, and the
// buffer depth must be > 0 when a trace log is attached.
func New(cfg Config, constraint Constraint, states []ControlState, act Actuator, opts ...Option) (*Controller, error) {
	c := &Controller{
		constraint:   constraint,
		actuator:     act,
		pendingFirst: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if act == nil {
		return nil, fmt.Errorf("actuator must not be nil")
	}
	if err := constraint.Validate(); err != nil {
		return nil, err
	}
	if c.sink != nil && cfg.BufferDepth == 0 {
		return nil, fmt.Errorf("buffer depth must be > 0 when a trace log is attached")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	table, err := NewStateTable(states)
	if err != nil {
		return nil, err
	}
	history, err := NewHistory(int(cfg.BufferDepth), cfg.Smoothing, cfg.EWMAAlpha)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.table = table
	c.history = history
	return c, nil
}

// CurrentStateID returns the state id the controller last settled on.
func (c *Controller) CurrentStateID() uint32 {
	return c.currentID
}

// LastStateID returns the state id in effect before the most recent decision.
func (c *Controller) LastStateID() uint32 {
	return c.lastID
}

// Constraint returns the active constraint.
func (c *Controller) Constraint() Constraint {
	return c.constraint
}

// SetConstraint replaces the active constraint. The replacement is observable
// only at the next decision boundary.
func (c *Controller) SetConstraint(typ ConstraintType, goal float64) error {
	next := Constraint{Type: typ, Goal: goal}
	if err := next.Validate(); err != nil {
		return err
	}
	c.constraint = next
	return nil
}

// Step reports one iteration's measurements. It records the sample, mirrors
// it to the trace log when one is attached, and on every Period-th call runs
// the decision engine and dispatches the actuator. It runs to completion
// before returning; there is no background work.
//
// When DisableControl is set the call is a no-op: no recording, no decision,
// no actuation.
func (c *Controller) Step(iterationID uint64, perf, power float64, idleNs uint64) {
	if c.cfg.DisableControl {
		return
	}

	c.history.Record(Sample{
		IterationID: iterationID,
		Performance: perf,
		Power:       power,
		IdleNs:      idleNs,
		At:          c.now(),
	})

	c.sincePeriod++
	if c.sincePeriod >= c.cfg.Period {
		c.sincePeriod = 0
		c.decide(idleNs)
	}

	if c.sink != nil {
		err := c.sink.Append(trace.Record{
			IterationID:   iterationID,
			Performance:   perf,
			Power:         power,
			IdleNs:        idleNs,
			ChosenStateID: c.currentID,
		})
		if err != nil {
			// Persistence never outranks actuation; keep looping.
			logrus.Warnf("trace log append failed: %v", err)
		}
	}
}

// decide runs one decision point: probe, search, idle resolution, dispatch.
func (c *Controller) decide(idleNs uint64) {
	if id, err := c.actuator.CurrentState(c.table.States()); err != nil {
		logrus.Warnf("current-state probe failed, keeping state %d: %v", c.currentID, err)
	} else if int(id) < c.table.Len() {
		c.currentID = id
	} else {
		logrus.Warnf("current-state probe returned out-of-range id %d, keeping state %d", id, c.currentID)
	}

	chosen := chooseState(
		c.table,
		c.constraint,
		c.history.SmoothedPerformance(),
		c.history.SmoothedPower(),
		c.currentID,
	)
	resolved := resolveIdle(c.table, chosen, c.history.IdleFraction(), *c.cfg.IdleThreshold, c.cfg.DisableIdle)

	if !c.cfg.DisableApply {
		c.actuator.Apply(c.table.States(), resolved, c.currentID, idleNs, c.pendingFirst)
		c.pendingFirst = false
	}
	c.lastID = c.currentID
	c.currentID = resolved
}

// Close releases the observation window and flushes/closes the trace log.
// Safe to call exactly once; a second call returns an error. Using the
// controller after Close is undefined.
func (c *Controller) Close() error {
	if c.closed {
		return fmt.Errorf("controller already closed")
	}
	c.closed = true
	c.history = nil
	if c.sink != nil {
		return c.sink.Close()
	}
	return nil
}
