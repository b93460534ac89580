package trace

// Summary aggregates statistics from a sequence of iteration records.
type Summary struct {
	TotalIterations   int
	MeanPerformance   float64
	MeanPower         float64
	UniqueStates      int
	StateDistribution map[uint32]int // state id → iterations spent in it
}

// Summarize computes aggregate statistics from records.
// Safe for nil or empty input (returns zero-value fields).
func Summarize(records []Record) *Summary {
	summary := &Summary{
		StateDistribution: make(map[uint32]int),
	}
	if len(records) == 0 {
		return summary
	}

	summary.TotalIterations = len(records)
	totalPerf, totalPower := 0.0, 0.0
	for _, r := range records {
		summary.StateDistribution[r.ChosenStateID]++
		totalPerf += r.Performance
		totalPower += r.Power
	}
	summary.MeanPerformance = totalPerf / float64(len(records))
	summary.MeanPower = totalPower / float64(len(records))
	summary.UniqueStates = len(summary.StateDistribution)

	return summary
}
