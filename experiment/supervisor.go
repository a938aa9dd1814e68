package experiment

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitcam/orbitcam/experiment/trace"
)

// StopReason records which stop condition ended a run.
type StopReason string

const (
	StopNone         StopReason = ""
	StopTimeWindow   StopReason = "time-window"
	StopSizeReached  StopReason = "size-ceiling"
	StopCountReached StopReason = "count-ceiling"
	StopCancelled    StopReason = "cancelled"
)

// Deps groups the Supervisor's external collaborators. Camera and Position
// are required; the rest default to the real implementations.
type Deps struct {
	Camera   Camera
	Position PositionSource
	Clock    Clock        // nil = SystemClock
	Decode   DecodeFunc   // nil = DecodeFile
	Index    []RecordSink // best-effort secondary sinks
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Decode == nil {
		d.Decode = DecodeFile
	}
	return d
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Window     RunWindow
	Reason     StopReason
	Accepted   int
	TotalSize  float64 // size units, not rounded
	Iterations int
	Trace      *trace.RunTrace
}

// Supervisor owns a whole run: resources, the loop and finalization.
type Supervisor struct {
	cfg     *Config
	deps    Deps
	openLog func(path string) (durableLog, error)
}

// NewSupervisor creates a Supervisor. cfg must already be valid.
func NewSupervisor(cfg *Config, deps Deps) *Supervisor {
	return &Supervisor{cfg: cfg, deps: deps.withDefaults(), openLog: openDurableLog}
}

// Run executes the experiment until the run window closes, a ceiling is
// reached or ctx is cancelled. Startup failures are returned before anything
// is written to the durable log. Past startup, finalization runs exactly
// once on every exit path and its errors are returned alongside the Result.
// The end marker is only written if the start marker was.
func (s *Supervisor) Run(ctx context.Context) (res *Result, err error) {
	if s.deps.Camera == nil || s.deps.Position == nil {
		return nil, errors.New("supervisor: camera and position source are required")
	}
	clock := s.deps.Clock
	runID := uuid.NewString()
	log := logrus.WithField("run", runID)

	window := NewRunWindow(clock.Now().UTC(), s.cfg.Duration)
	log.Infof("New run until %s", window.End.Format("2006-01-02 15:04:05"))

	if err := os.MkdirAll(s.cfg.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	firstSeq, err := s.cfg.FirstFreeSeq()
	if err != nil {
		return nil, err
	}
	if firstSeq > 0 {
		log.Infof("Found earlier images in %s, numbering from %d", s.cfg.ImageDir, firstSeq)
	}
	dataLog, err := s.openLog(s.cfg.DataLogPath)
	if err != nil {
		return nil, err
	}
	log.Infof("Opened data file %s", dataLog.Path())

	if err := s.deps.Camera.Configure(s.cfg.Camera); err != nil {
		return nil, errors.Join(fmt.Errorf("configuring camera: %w", err), dataLog.Close(), s.deps.Camera.Close())
	}
	log.Infof("Initialized camera at %dx%d, %d fps", s.cfg.Camera.Width, s.cfg.Camera.Height, s.cfg.Camera.FrameRate)
	if s.cfg.WarmupDelay > 0 {
		clock.Sleep(s.cfg.WarmupDelay)
	}

	budget := NewTracker(s.cfg.MaxSize, s.cfg.MaxImages)
	rt := trace.NewRunTrace(runID)
	res = &Result{RunID: runID, Window: window, Trace: rt}

	begun, finalized := false, false
	finalize := func() error {
		if finalized {
			return nil
		}
		finalized = true
		res.Accepted = budget.Count()
		res.TotalSize = budget.Size()
		res.Iterations = len(rt.Iterations)
		var endErr error
		if begun {
			endErr = dataLog.End(budget.Size())
		}
		ferr := errors.Join(endErr, dataLog.Close(), s.deps.Camera.Close())
		log.Infof("Closed everything (%s, %d images, %.2f size), end of log.", res.Reason, res.Accepted, res.TotalSize)
		return ferr
	}
	defer func() {
		if ferr := finalize(); ferr != nil {
			err = errors.Join(err, fmt.Errorf("finalizing run: %w", ferr))
		}
	}()

	if err := dataLog.Begin(); err != nil {
		return res, err
	}
	begun = true
	log.Info("Starting experiment!")

	ctrl := NewController(s.cfg, s.deps, budget, dataLog, rt, runID, firstSeq)
	last := Continue
	for {
		if res.Reason = s.checkStop(ctx, window, last); res.Reason != StopNone {
			break
		}
		last = ctrl.RunIteration().Outcome
	}
	return res, nil
}

// checkStop evaluates the stop conditions at a loop boundary: the ceilings
// signaled by the last iteration, then cancellation, then the run window.
func (s *Supervisor) checkStop(ctx context.Context, w RunWindow, last Outcome) StopReason {
	switch {
	case last == StopSizeCeiling:
		return StopSizeReached
	case last == StopCountCeiling:
		return StopCountReached
	case ctx.Err() != nil:
		return StopCancelled
	case w.Expired(s.deps.Clock.Now().UTC()):
		return StopTimeWindow
	}
	return StopNone
}
