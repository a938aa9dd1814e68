package trace

import "time"

// Summary aggregates statistics from a RunTrace.
type Summary struct {
	TotalIterations int
	Accepted        int
	NightDiscards   int
	SizeRejections  int
	Failures        int
	FailuresByKind  map[string]int // error kind to count
	Overruns        int
	MaxOverrun      time.Duration
	MeanElapsed     time.Duration
	MeanBrightness  float64 // over scored iterations only
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *Summary {
	s := &Summary{
		FailuresByKind: make(map[string]int),
	}
	if rt == nil || len(rt.Iterations) == 0 {
		return s
	}

	s.TotalIterations = len(rt.Iterations)
	var elapsed time.Duration
	var brightness float64
	scored := 0
	for _, it := range rt.Iterations {
		switch it.Action {
		case ActionAccepted:
			s.Accepted++
		case ActionNight:
			s.NightDiscards++
		case ActionSizeCeiling:
			s.SizeRejections++
		case ActionFailed:
			s.Failures++
			s.FailuresByKind[it.ErrorKind]++
		}
		if it.Overrun > 0 {
			s.Overruns++
			if it.Overrun > s.MaxOverrun {
				s.MaxOverrun = it.Overrun
			}
		}
		if it.Action == ActionAccepted || it.Action == ActionNight || it.Action == ActionSizeCeiling {
			brightness += it.Brightness
			scored++
		}
		elapsed += it.Elapsed
	}
	s.MeanElapsed = elapsed / time.Duration(s.TotalIterations)
	if scored > 0 {
		s.MeanBrightness = brightness / float64(scored)
	}
	return s
}
