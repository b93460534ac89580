// Package trace provides per-iteration decision records, an append-only CSV
// log sink, and summary aggregation. It has no dependency on ctl/ — it stores
// pure data types plus buffered I/O.
package trace

// Record captures one controller iteration: the reported measurements and the
// state id in effect after any decision made that iteration.
type Record struct {
	IterationID   uint64
	Performance   float64
	Power         float64
	IdleNs        uint64
	ChosenStateID uint32
}
