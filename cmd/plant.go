package cmd

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	ctl "github.com/statetune/statetune/ctl"
)

// simPlant is the synthetic system driven by `statetune run`. It reports
// performance and power derived from the applied state's profile plus seeded
// Gaussian noise, so runs with the same seed are reproducible.
type simPlant struct {
	rng       *rand.Rand
	basePerf  float64 // performance delivered at state 0
	basePower float64 // power drawn at state 0
	noise     float64 // relative stddev of measurement noise
	idleNs    uint64  // idle time reported each iteration (simulated slack)
	current   uint32
	applies   int
}

func newSimPlant(seed int64, basePerf, basePower, noise float64, idleNs uint64) *simPlant {
	return &simPlant{
		rng:       rand.New(rand.NewSource(seed)),
		basePerf:  basePerf,
		basePower: basePower,
		noise:     noise,
		idleNs:    idleNs,
	}
}

// Apply transitions the plant to the requested state.
func (p *simPlant) Apply(states []ctl.ControlState, newID, lastID uint32, idleNs uint64, firstApply bool) {
	p.current = newID
	p.applies++
	logrus.Debugf("[plant] apply %d -> %d (idle_ns=%d first=%v)", lastID, newID, idleNs, firstApply)
}

// CurrentState reports the plant's active state. It never fails.
func (p *simPlant) CurrentState(states []ctl.ControlState) (uint32, error) {
	return p.current, nil
}

// Measure produces one iteration's measurements at the current state.
func (p *simPlant) Measure(states []ctl.ControlState) (perf, power float64, idleNs uint64) {
	s := states[p.current]
	perf = p.basePerf * s.Speedup * (1 + p.noise*p.rng.NormFloat64())
	power = p.basePower * s.Cost * (1 + p.noise*p.rng.NormFloat64())
	if perf < 0 {
		perf = 0
	}
	if power < 0 {
		power = 0
	}
	return perf, power, p.idleNs
}
