package trace

// RunTrace collects iteration records during one run.
type RunTrace struct {
	RunID      string
	Iterations []IterationRecord
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(runID string) *RunTrace {
	return &RunTrace{
		RunID:      runID,
		Iterations: make([]IterationRecord, 0),
	}
}

// Record appends an iteration record.
func (rt *RunTrace) Record(record IterationRecord) {
	rt.Iterations = append(rt.Iterations, record)
}

// Last returns the most recent record, or false if none.
func (rt *RunTrace) Last() (IterationRecord, bool) {
	if len(rt.Iterations) == 0 {
		return IterationRecord{}, false
	}
	return rt.Iterations[len(rt.Iterations)-1], true
}
