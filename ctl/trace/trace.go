package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// header is the first row of every log.
var header = []string{"iteration_id", "performance", "power", "idle_ns", "chosen_state_id"}

// Log is an append-only record sink. Records are buffered and written out as
// CSV every depth appends and on Flush/Close. Write errors never abort the
// caller's control decisions; they surface from Flush and Close only.
type Log struct {
	w     *csv.Writer
	depth int
	buf   []Record
	c     io.Closer // non-nil when the log owns the underlying file
}

// NewLog creates a Log writing to w, flushing every depth records.
func NewLog(w io.Writer, depth int) (*Log, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("log buffer depth must be > 0, got %d", depth)
	}
	return &Log{
		w:     csv.NewWriter(w),
		depth: depth,
		buf:   make([]Record, 0, depth),
	}, nil
}

// OpenFileLog creates (or truncates) the file at path and returns a Log that
// owns it. Close releases the file.
func OpenFileLog(path string, depth int) (*Log, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	l, err := NewLog(f, depth)
	if err != nil {
		f.Close()
		return nil, err
	}
	l.c = f
	return l, nil
}

// Append buffers one record, flushing when the buffer reaches depth.
func (l *Log) Append(r Record) error {
	l.buf = append(l.buf, r)
	if len(l.buf) >= l.depth {
		return l.Flush()
	}
	return nil
}

// Flush writes all buffered records and reports any write error that has
// occurred, including on earlier flushes.
func (l *Log) Flush() error {
	for _, r := range l.buf {
		row := []string{
			strconv.FormatUint(r.IterationID, 10),
			strconv.FormatFloat(r.Performance, 'g', -1, 64),
			strconv.FormatFloat(r.Power, 'g', -1, 64),
			strconv.FormatUint(r.IdleNs, 10),
			strconv.FormatUint(uint64(r.ChosenStateID), 10),
		}
		if err := l.w.Write(row); err != nil {
			return fmt.Errorf("write trace record: %w", err)
		}
	}
	l.buf = l.buf[:0]
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush trace log: %w", err)
	}
	return nil
}

// WriteHeader writes the column header row. Call once, before any Append.
func (l *Log) WriteHeader() error {
	if err := l.w.Write(header); err != nil {
		return fmt.Errorf("write trace header: %w", err)
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes buffered records and releases the underlying file, if owned.
func (l *Log) Close() error {
	err := l.Flush()
	if l.c != nil {
		if cerr := l.c.Close(); err == nil {
			err = cerr
		}
		l.c = nil
	}
	return err
}
