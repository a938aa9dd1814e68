package experiment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orbitcam/orbitcam/experiment/trace"
)

// Outcome tells the Supervisor whether the run goes on after an iteration.
type Outcome int

const (
	Continue Outcome = iota
	StopSizeCeiling
	StopCountCeiling
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case StopSizeCeiling:
		return "size-ceiling"
	case StopCountCeiling:
		return "count-ceiling"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Terminal reports whether the outcome ends the run.
func (o Outcome) Terminal() bool { return o != Continue }

// IterationResult is what RunIteration hands back to the Supervisor.
// Err is already logged; it never stops the run on its own.
type IterationResult struct {
	Outcome Outcome
	Err     error
}

// Controller runs single capture iterations. It owns no resources; the
// Supervisor opens and closes everything it uses.
type Controller struct {
	cfg       *Config
	camera    Camera
	position  PositionSource
	clock     Clock
	decode    DecodeFunc
	evaluator Evaluator
	budget    *Tracker
	durable   RecordSink
	index     []RecordSink
	trace     *trace.RunTrace
	runID     string
	iteration int
	firstSeq  int // artifact index of the first accepted image
}

// NewController wires a Controller. durable must sync each record before
// returning; index sinks are best-effort. Artifact names start at firstSeq,
// which must be past every artifact already in cfg.ImageDir.
func NewController(cfg *Config, deps Deps, budget *Tracker, durable RecordSink, rt *trace.RunTrace, runID string, firstSeq int) *Controller {
	deps = deps.withDefaults()
	return &Controller{
		cfg:       cfg,
		camera:    deps.Camera,
		position:  deps.Position,
		clock:     deps.Clock,
		decode:    deps.Decode,
		evaluator: NewEvaluator(cfg.SampleStride),
		budget:    budget,
		durable:   durable,
		index:     deps.Index,
		trace:     rt,
		runID:     runID,
		firstSeq:  firstSeq,
	}
}

// RunIteration performs one capture, evaluate, budget and commit pass and
// then paces to the cadence. Terminal outcomes skip the pacing sleep.
func (c *Controller) RunIteration() IterationResult {
	begin := c.clock.Now()
	rec := trace.IterationRecord{Iteration: c.iteration, Seq: c.firstSeq + c.budget.Count()}
	c.iteration++

	outcome, err := c.attempt(&rec)
	if err != nil {
		kind := KindOf(err)
		rec.Action = trace.ActionFailed
		rec.ErrorKind = kind.String()
		rec.Error = err.Error()
		logrus.WithFields(logrus.Fields{
			"kind": kind.String(),
			"seq":  rec.Seq,
		}).Errorf("Error in %s, %v", kind, errors.Unwrap(err))
	}

	rec.Elapsed = c.clock.Now().Sub(begin)
	if !outcome.Terminal() {
		rec.Overrun = c.pace(rec.Elapsed)
	}
	c.trace.Record(rec)
	return IterationResult{Outcome: outcome, Err: err}
}

// attempt covers the capture, evaluate, budget-check and commit states.
// Anything not committed when it returns, including after a panic, is
// rolled back from the budget, and the artifact is removed from disk if this
// attempt created it.
func (c *Controller) attempt(rec *trace.IterationRecord) (outcome Outcome, err error) {
	seq := rec.Seq
	name := c.cfg.ImageName(seq)
	path := filepath.Join(c.cfg.ImageDir, name)

	var (
		owned     bool
		admitted  bool
		size      float64
		committed bool
	)
	defer func() {
		if r := recover(); r != nil {
			outcome, err = Continue, iterationError(KindUnknown, seq, fmt.Errorf("panic: %v", r))
		}
		if committed {
			return
		}
		if admitted {
			c.budget.Rollback(size)
		}
		if !owned {
			return
		}
		if rmErr := removeArtifact(path); rmErr != nil && err == nil {
			err = iterationError(KindStorage, seq, rmErr)
		}
	}()

	// A file already in the slot belongs to someone else. Leave it alone and
	// move the remaining names past it.
	if _, statErr := os.Lstat(path); !errors.Is(statErr, fs.ErrNotExist) {
		c.firstSeq++
		if statErr == nil {
			statErr = fmt.Errorf("artifact slot %s already exists", name)
		}
		return Continue, iterationError(KindStorage, seq, statErr)
	}
	owned = true

	if err := c.camera.Capture(path); err != nil {
		return Continue, iterationError(KindCapture, seq, err)
	}
	logrus.Infof("[image %05d] Took an image", seq)

	img, err := c.decode(path)
	if err != nil {
		return Continue, iterationError(KindDecode, seq, err)
	}
	night, score, err := c.evaluator.IsNight(img, c.cfg.NightThreshold)
	if err != nil {
		return Continue, iterationError(KindDecode, seq, err)
	}
	rec.Brightness = score
	if night {
		rec.Action = trace.ActionNight
		logrus.Infof("[image %05d] Removed image because it was night time (brightness %.0f < %.0f)",
			seq, score, c.cfg.NightThreshold)
		return Continue, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return Continue, iterationError(KindStorage, seq, err)
	}
	size = c.cfg.SizeUnits(info.Size())
	rec.Size = size

	admitted = true
	if d := c.budget.TryAdmit(size); d.WouldExceed {
		rec.Action = trace.ActionSizeCeiling
		logrus.Warnf("[image %05d] Max size reached (%.2f + %.2f > %.2f), removing image and exiting.",
			seq, c.budget.Size()-size, size, c.cfg.MaxSize)
		return StopSizeCeiling, nil
	}

	coords, err := c.position.CurrentCoordinates()
	if err != nil {
		return Continue, iterationError(KindPosition, seq, err)
	}
	record := CaptureRecord{
		Seq:       seq,
		FileName:  name,
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
		Timestamp: c.clock.Now().UTC().Truncate(time.Millisecond),
		RunID:     c.runID,
	}
	if err := c.durable.Append(record); err != nil {
		return Continue, iterationError(KindStorage, seq, err)
	}
	committed = true

	for _, sink := range c.index {
		if err := sink.Append(record); err != nil {
			logrus.Warnf("[image %05d] capture index append failed: %v", seq, err)
		}
	}

	count := c.budget.RecordAccepted()
	rec.Action = trace.ActionAccepted
	logrus.Infof("[image %05d] Saved image (%d/%d images, %.2f/%.2f size)",
		seq, count, c.cfg.MaxImages, c.budget.Size(), c.cfg.MaxSize)
	if count == c.cfg.MaxImages {
		logrus.Warnf("Max images reached (%d), exiting.", count)
		return StopCountCeiling, nil
	}
	return Continue, nil
}

// pace sleeps out the rest of the cadence and returns the overrun, if any.
// Overruns are only logged: no frames are skipped and nothing catches up.
func (c *Controller) pace(elapsed time.Duration) time.Duration {
	wait := c.cfg.Cadence - elapsed
	if wait >= 0 {
		if wait > 0 {
			c.clock.Sleep(wait)
		}
		return 0
	}
	logrus.Warnf("Experiment is taking too long! (+%.3f seconds!)", (-wait).Seconds())
	return -wait
}

func removeArtifact(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
