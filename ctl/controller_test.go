package ctl

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/statetune/statetune/ctl/trace"
)

type applyCall struct {
	newID  uint32
	lastID uint32
	idleNs uint64
	first  bool
}

// fakeActuator records Apply calls and serves CurrentState probes from its
// own notion of the active state, like a real plant would.
type fakeActuator struct {
	current  uint32
	probeErr error
	applies  []applyCall
	probes   int
}

func (f *fakeActuator) Apply(states []ControlState, newID, lastID uint32, idleNs uint64, first bool) {
	f.applies = append(f.applies, applyCall{newID: newID, lastID: lastID, idleNs: idleNs, first: first})
	f.current = newID
}

func (f *fakeActuator) CurrentState(states []ControlState) (uint32, error) {
	f.probes++
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.current, nil
}

func f64ptr(v float64) *float64 {
	return &v
}

// stepClock returns a clock advancing 1ms per sample.
func stepClock() func() time.Time {
	t := time.Unix(1000, 0)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func newTestController(t *testing.T, cfg Config, c Constraint, states []ControlState, act Actuator, opts ...Option) *Controller {
	t.Helper()
	ctrl, err := New(cfg, c, states, act, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctrl
}

func TestNew_PreconditionViolations(t *testing.T) {
	states := validStates()
	act := &fakeActuator{}
	good := Config{Period: 4, BufferDepth: 4}

	cases := []struct {
		name string
		run  func() (*Controller, error)
	}{
		{"zero goal", func() (*Controller, error) {
			return New(good, Constraint{Type: Performance, Goal: 0}, states, act)
		}},
		{"empty table", func() (*Controller, error) {
			return New(good, Constraint{Type: Performance, Goal: 1}, nil, act)
		}},
		{"nil actuator", func() (*Controller, error) {
			return New(good, Constraint{Type: Performance, Goal: 1}, states, nil)
		}},
		{"zero period", func() (*Controller, error) {
			return New(Config{BufferDepth: 4}, Constraint{Type: Performance, Goal: 1}, states, act)
		}},
		{"zero depth with trace log", func() (*Controller, error) {
			sink, err := trace.NewLog(&bytes.Buffer{}, 1)
			if err != nil {
				t.Fatalf("NewLog: %v", err)
			}
			return New(Config{Period: 4}, Constraint{Type: Performance, Goal: 1}, states, act, WithTraceLog(sink))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, err := tc.run()
			assert.Error(t, err)
			assert.Nil(t, ctrl)
		})
	}
}

func TestController_DecidesOncePerPeriod(t *testing.T) {
	// GIVEN a controller with period 4
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 4, BufferDepth: 4},
		Constraint{Type: Performance, Goal: 1.5},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 2, Cost: 1.8, IdlePartner: 1},
		},
		act,
		WithClock(stepClock()),
	)

	// WHEN 3 iterations report performance 1.0 at state 0
	for i := 1; i <= 3; i++ {
		ctrl.Step(uint64(i), 1.0, 1.0, 0)
	}

	// THEN no decision has been dispatched yet
	if len(act.applies) != 0 {
		t.Fatalf("applies before period boundary: got %d, want 0", len(act.applies))
	}

	// WHEN the 4th iteration lands on the period boundary
	ctrl.Step(4, 1.0, 1.0, 0)

	// THEN exactly one apply occurred: required speedup 1.5 selects state 1,
	// flagged as the very first apply
	if len(act.applies) != 1 {
		t.Fatalf("applies at period boundary: got %d, want 1", len(act.applies))
	}
	call := act.applies[0]
	if call.newID != 1 || call.lastID != 0 || !call.first {
		t.Errorf("apply call: got %+v, want newID=1 lastID=0 first=true", call)
	}
	if ctrl.CurrentStateID() != 1 || ctrl.LastStateID() != 0 {
		t.Errorf("ids after decision: current=%d last=%d, want 1 and 0", ctrl.CurrentStateID(), ctrl.LastStateID())
	}
}

func TestController_SecondDecisionIsNotFirstApply(t *testing.T) {
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 2, BufferDepth: 2},
		Constraint{Type: Performance, Goal: 1.5},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 2, Cost: 1.8, IdlePartner: 1},
		},
		act,
		WithClock(stepClock()),
	)

	ctrl.Step(1, 1.0, 1.0, 0)
	ctrl.Step(2, 1.0, 1.0, 0) // first decision: 0 -> 1
	ctrl.Step(3, 2.0, 1.8, 0)
	ctrl.Step(4, 2.0, 1.8, 0) // second decision: stays at 1

	if len(act.applies) != 2 {
		t.Fatalf("applies: got %d, want 2", len(act.applies))
	}
	assert.True(t, act.applies[0].first)
	assert.False(t, act.applies[1].first)
	assert.Equal(t, uint32(1), act.applies[1].newID)
	assert.Equal(t, uint32(1), act.applies[1].lastID)
}

func TestController_SingleStateTable(t *testing.T) {
	// GIVEN a single-state table
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 2, BufferDepth: 2},
		Constraint{Type: Power, Goal: 42},
		[]ControlState{{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0}},
		act,
		WithClock(stepClock()),
	)

	// WHEN several periods elapse
	for i := 1; i <= 6; i++ {
		ctrl.Step(uint64(i), 1.0, 1.0, 0)
	}

	// THEN every decision selects state 0, apply runs once per boundary, and
	// only the very first carries first=true
	if len(act.applies) != 3 {
		t.Fatalf("applies: got %d, want 3", len(act.applies))
	}
	for i, call := range act.applies {
		if call.newID != 0 {
			t.Errorf("apply %d: newID got %d, want 0", i, call.newID)
		}
		if call.first != (i == 0) {
			t.Errorf("apply %d: first got %v, want %v", i, call.first, i == 0)
		}
	}
}

func TestController_ProbeFailureKeepsLastKnownId(t *testing.T) {
	// GIVEN a controller that has settled on state 1
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 2, BufferDepth: 2},
		Constraint{Type: Performance, Goal: 1.5},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 2, Cost: 1.8, IdlePartner: 1},
		},
		act,
		WithClock(stepClock()),
	)
	ctrl.Step(1, 1.0, 1.0, 0)
	ctrl.Step(2, 1.0, 1.0, 0)
	if ctrl.CurrentStateID() != 1 {
		t.Fatalf("setup: current id got %d, want 1", ctrl.CurrentStateID())
	}

	// WHEN the probe fails for 3 consecutive decision points
	act.probeErr = errors.New("probe unavailable")
	for i := 3; i <= 8; i++ {
		ctrl.Step(uint64(i), 2.0, 1.8, 0)
	}

	// THEN the engine kept scaling against the last successfully known id:
	// at state 1 with smoothed perf 2.0 the target stays 1.5 and state 1 is
	// re-chosen every time; no crash, no fabricated id
	if len(act.applies) != 4 {
		t.Fatalf("applies: got %d, want 4", len(act.applies))
	}
	for i, call := range act.applies[1:] {
		if call.newID != 1 || call.lastID != 1 {
			t.Errorf("apply %d during probe failure: got %+v, want newID=1 lastID=1", i+1, call)
		}
	}
	assert.Equal(t, uint32(1), ctrl.CurrentStateID())
}

func TestController_DisableApplySuppressesActuationOnly(t *testing.T) {
	// GIVEN a controller with the apply toggle disabled
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 2, BufferDepth: 2, DisableApply: true},
		Constraint{Type: Performance, Goal: 1.5},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 2, Cost: 1.8, IdlePartner: 1},
		},
		act,
		WithClock(stepClock()),
	)

	// WHEN a decision point passes
	ctrl.Step(1, 1.0, 1.0, 0)
	ctrl.Step(2, 1.0, 1.0, 0)

	// THEN the engine ran (probe issued, bookkeeping advanced) but the
	// actuator was never invoked
	if act.probes != 1 {
		t.Errorf("probes: got %d, want 1", act.probes)
	}
	if len(act.applies) != 0 {
		t.Errorf("applies: got %d, want 0", len(act.applies))
	}
	assert.Equal(t, uint32(1), ctrl.CurrentStateID())
}

func TestController_DisableControlSkipsEverything(t *testing.T) {
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 1, BufferDepth: 2, DisableControl: true},
		Constraint{Type: Performance, Goal: 1.5},
		validStates(),
		act,
		WithClock(stepClock()),
	)

	for i := 1; i <= 10; i++ {
		ctrl.Step(uint64(i), 1.0, 1.0, 0)
	}

	assert.Zero(t, act.probes)
	assert.Empty(t, act.applies)
	assert.Equal(t, uint32(0), ctrl.CurrentStateID())
}

func TestController_SetConstraintTakesEffectAtNextDecision(t *testing.T) {
	// GIVEN a controller holding state 1 under a performance constraint
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 2, BufferDepth: 2},
		Constraint{Type: Performance, Goal: 1.5},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 2, Cost: 1.8, IdlePartner: 1},
		},
		act,
		WithClock(stepClock()),
	)
	ctrl.Step(1, 1.0, 1.0, 0)
	ctrl.Step(2, 1.0, 1.0, 0)
	assert.Equal(t, uint32(1), ctrl.CurrentStateID())

	// WHEN the constraint switches to a tight power budget mid-period
	if err := ctrl.SetConstraint(Power, 1.0); err != nil {
		t.Fatalf("SetConstraint: %v", err)
	}

	// THEN the next decision applies it: budget cost(1)*(1.0/1.8) = 1.0
	// admits only state 0
	ctrl.Step(3, 2.0, 1.8, 0)
	ctrl.Step(4, 2.0, 1.8, 0)
	assert.Equal(t, uint32(0), ctrl.CurrentStateID())

	// AND invalid replacements are rejected
	assert.Error(t, ctrl.SetConstraint(Performance, 0))
}

func TestController_IdleSubstitutionAtDecision(t *testing.T) {
	// GIVEN a table where state 1 has idle variant 2, and a plant reporting
	// 90% idle time
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 4, BufferDepth: 4, IdleThreshold: f64ptr(0.1)},
		Constraint{Type: Performance, Goal: 1.0},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 1, Cost: 1, IdlePartner: 1},
			{ID: 2, Speedup: 1, Cost: 1, IdlePartner: 1}, // idle variant of 1
		},
		act,
		WithClock(stepClock()),
	)

	// WHEN a period elapses with 0.9ms of idle per 1ms iteration
	for i := 1; i <= 4; i++ {
		ctrl.Step(uint64(i), 1.0, 1.0, 900_000)
	}

	// THEN the engine's choice (state 0, cheapest qualifier) has no idle
	// variant and passes through unchanged
	if len(act.applies) != 1 {
		t.Fatalf("applies: got %d, want 1", len(act.applies))
	}
	assert.Equal(t, uint32(0), act.applies[0].newID)
	assert.Equal(t, uint64(900_000), act.applies[0].idleNs)
}

func TestController_IdleSubstitutionPrefersIdleVariant(t *testing.T) {
	// GIVEN a table whose cheapest qualifying state has an idle variant
	act := &fakeActuator{}
	act.current = 0
	ctrl := newTestController(t,
		Config{Period: 4, BufferDepth: 4, IdleThreshold: f64ptr(0.1)},
		Constraint{Type: Performance, Goal: 1.8},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 2, Cost: 1.8, IdlePartner: 1},
			{ID: 2, Speedup: 2, Cost: 1.8, IdlePartner: 1}, // idle variant of 1
		},
		act,
		WithClock(stepClock()),
	)

	// WHEN a period elapses with high observed idle time
	for i := 1; i <= 4; i++ {
		ctrl.Step(uint64(i), 1.0, 1.0, 900_000)
	}

	// THEN the engine picks state 1 (required speedup 1.8) and the resolver
	// substitutes its idle variant 2
	if len(act.applies) != 1 {
		t.Fatalf("applies: got %d, want 1", len(act.applies))
	}
	assert.Equal(t, uint32(2), act.applies[0].newID)
	assert.Equal(t, uint32(2), ctrl.CurrentStateID())
}

func TestController_TraceLogOneRecordPerIteration(t *testing.T) {
	// GIVEN a controller mirroring samples to an in-memory trace log
	var buf bytes.Buffer
	sink, err := trace.NewLog(&buf, 2)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 4, BufferDepth: 4},
		Constraint{Type: Performance, Goal: 1.0},
		[]ControlState{{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0}},
		act,
		WithClock(stepClock()),
		WithTraceLog(sink),
	)

	// WHEN 6 iterations run (only one of which is a decision point)
	for i := 1; i <= 6; i++ {
		ctrl.Step(uint64(i), 1.0, 1.0, 0)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// THEN every iteration produced a record, decision or not
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("trace lines: got %d, want 6\n%s", len(lines), buf.String())
	}
	assert.True(t, strings.HasPrefix(lines[0], "1,"))
	assert.True(t, strings.HasPrefix(lines[5], "6,"))
}

// failingWriter rejects every write, standing in for an unavailable sink.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("sink unavailable")
}

func TestController_TraceLogFailureDoesNotAbortControl(t *testing.T) {
	// GIVEN a trace log whose writer always fails, flushing on every append
	sink, err := trace.NewLog(failingWriter{}, 1)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 2, BufferDepth: 2},
		Constraint{Type: Performance, Goal: 1.5},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 2, Cost: 1.8, IdlePartner: 1},
		},
		act,
		WithClock(stepClock()),
		WithTraceLog(sink),
	)

	// WHEN two full periods run with every sink write erroring
	ctrl.Step(1, 1.0, 1.0, 0)
	ctrl.Step(2, 1.0, 1.0, 0)
	ctrl.Step(3, 2.0, 1.8, 0)
	ctrl.Step(4, 2.0, 1.8, 0)

	// THEN both decision points still dispatched and the controller settled
	// on state 1: persistence failures never abort the control decision
	if len(act.applies) != 2 {
		t.Fatalf("applies: got %d, want 2", len(act.applies))
	}
	assert.Equal(t, uint32(1), ctrl.CurrentStateID())

	// AND the sink error surfaces from Close, not from the control loop
	assert.Error(t, ctrl.Close())
}

func TestController_ZeroIdleThresholdSubstitutesOnAnyIdle(t *testing.T) {
	// GIVEN an explicit threshold of 0 and a barely-idle plant
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 4, BufferDepth: 4, IdleThreshold: f64ptr(0)},
		Constraint{Type: Performance, Goal: 1.0},
		[]ControlState{
			{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0},
			{ID: 1, Speedup: 1, Cost: 1, IdlePartner: 0}, // idle variant of 0
		},
		act,
		WithClock(stepClock()),
	)

	// WHEN a period elapses with only 1us of idle per 1ms iteration
	for i := 1; i <= 4; i++ {
		ctrl.Step(uint64(i), 1.0, 1.0, 1_000)
	}

	// THEN even that tiny idle fraction exceeds the zero threshold and the
	// idle variant is substituted
	if len(act.applies) != 1 {
		t.Fatalf("applies: got %d, want 1", len(act.applies))
	}
	assert.Equal(t, uint32(1), act.applies[0].newID)
}

func TestController_CloseExactlyOnce(t *testing.T) {
	act := &fakeActuator{}
	ctrl := newTestController(t,
		Config{Period: 1, BufferDepth: 1},
		Constraint{Type: Performance, Goal: 1.0},
		[]ControlState{{ID: 0, Speedup: 1, Cost: 1, IdlePartner: 0}},
		act,
	)

	assert.NoError(t, ctrl.Close())
	assert.Error(t, ctrl.Close())
}
