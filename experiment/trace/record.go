// Package trace provides per-iteration recording for experiment runs.
// It has no dependencies on experiment/ and stores pure data types.
package trace

import "time"

// Action is what an iteration ended up doing with its capture.
type Action string

const (
	ActionAccepted    Action = "accepted"     // committed to the durable log
	ActionNight       Action = "night"        // discarded as too dark
	ActionSizeCeiling Action = "size-ceiling" // rolled back; the run stops
	ActionFailed      Action = "failed"       // iteration error
)

// IterationRecord captures a single loop iteration.
type IterationRecord struct {
	Iteration  int // 0-based attempt counter, including failures
	Seq        int // artifact sequence index the iteration used
	Action     Action
	Brightness float64 // 0 when the image was never scored
	Size       float64 // size units; 0 when never measured
	Elapsed    time.Duration
	Overrun    time.Duration // elapsed beyond the cadence; 0 if on time
	ErrorKind  string        // empty unless Action == ActionFailed
	Error      string
}
