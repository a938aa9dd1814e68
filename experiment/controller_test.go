package experiment

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcam/orbitcam/experiment/trace"
)

type controllerFixture struct {
	cfg     *Config
	clock   *fakeClock
	camera  *fakeCamera
	pos     *fakePosition
	durable *memorySink
	index   *memorySink
	budget  *Tracker
	trace   *trace.RunTrace
	ctrl    *Controller

	firstSeq int
}

func newControllerFixture(t *testing.T, shots ...shot) *controllerFixture {
	t.Helper()
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.ImageDir, 0o755))

	f := &controllerFixture{
		cfg:     cfg,
		clock:   newFakeClock(),
		pos:     &fakePosition{coords: Coordinates{Latitude: 12.25, Longitude: -45.5}},
		durable: &memorySink{},
		index:   &memorySink{},
		trace:   trace.NewRunTrace("run-1"),
	}
	f.camera = &fakeCamera{t: t, clock: f.clock, shots: shots}
	f.rebuild()
	return f
}

// rebuild recreates the tracker and controller after cfg changes.
func (f *controllerFixture) rebuild() {
	f.budget = NewTracker(f.cfg.MaxSize, f.cfg.MaxImages)
	deps := Deps{
		Camera:   f.camera,
		Position: f.pos,
		Clock:    f.clock,
		Index:    []RecordSink{f.index},
	}
	f.ctrl = NewController(f.cfg, deps, f.budget, f.durable, f.trace, "run-1", f.firstSeq)
}

func TestController_AcceptsDayImage(t *testing.T) {
	f := newControllerFixture(t, day())
	size := float64(daySize(t))

	res := f.ctrl.RunIteration()

	require.NoError(t, res.Err)
	assert.Equal(t, Continue, res.Outcome)
	require.Len(t, f.durable.records, 1)
	rec := f.durable.records[0]
	assert.Equal(t, 0, rec.Seq)
	assert.Equal(t, "Image_0.jpg", rec.FileName)
	assert.Equal(t, 12.25, rec.Latitude)
	assert.Equal(t, -45.5, rec.Longitude)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, f.durable.records, f.index.records, "index sees the same record")

	assert.True(t, fileExists(imagePath(f.cfg, 0)))
	assert.Equal(t, 1, f.budget.Count())
	assert.Equal(t, size, f.budget.Size())

	it, ok := f.trace.Last()
	require.True(t, ok)
	assert.Equal(t, trace.ActionAccepted, it.Action)
	assert.Equal(t, 255.0, it.Brightness)
	assert.Equal(t, size, it.Size)

	// Nothing took time, so the whole cadence is slept.
	assert.Equal(t, []time.Duration{f.cfg.Cadence}, f.clock.sleeps)
}

func TestController_TimestampTruncatedToMillisecond(t *testing.T) {
	f := newControllerFixture(t, day())
	f.clock.now = time.Date(2022, 4, 12, 10, 0, 0, 123_456_789, time.FixedZone("X", 3600))

	require.NoError(t, f.ctrl.RunIteration().Err)

	ts := f.durable.records[0].Timestamp
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, 123_000_000, ts.Nanosecond())
	assert.Equal(t, 9, ts.Hour())
}

func TestController_DiscardsNightImage(t *testing.T) {
	f := newControllerFixture(t, night())

	res := f.ctrl.RunIteration()

	require.NoError(t, res.Err)
	assert.Equal(t, Continue, res.Outcome)
	assert.Empty(t, f.durable.records)
	assert.False(t, fileExists(imagePath(f.cfg, 0)))
	assert.Equal(t, 0, f.budget.Count())
	assert.Equal(t, 0.0, f.budget.Size())
	assert.Equal(t, 0, f.pos.calls, "no position lookup for discarded images")

	it, _ := f.trace.Last()
	assert.Equal(t, trace.ActionNight, it.Action)
	assert.Equal(t, 0.0, it.Brightness)
}

func TestController_SizeCeilingRollsBackAndStops(t *testing.T) {
	f := newControllerFixture(t, day())
	size := float64(daySize(t))
	f.cfg.MaxSize = size * 1.5
	f.rebuild()
	hook := logtest.NewGlobal()

	first := f.ctrl.RunIteration()
	second := f.ctrl.RunIteration()

	assert.Equal(t, Continue, first.Outcome)
	assert.Equal(t, StopSizeCeiling, second.Outcome)
	require.NoError(t, second.Err)

	assert.Equal(t, size, f.budget.Size(), "tentative addition rolled back")
	assert.Equal(t, 1, f.budget.Count())
	assert.Len(t, f.durable.records, 1)
	assert.True(t, fileExists(imagePath(f.cfg, 0)))
	assert.False(t, fileExists(imagePath(f.cfg, 1)), "rejected artifact removed")
	assert.Equal(t, 1, f.pos.calls, "rejected image never reaches the position source")

	// Terminal outcome: no pacing sleep after the rejection.
	assert.Len(t, f.clock.sleeps, 1)

	it, _ := f.trace.Last()
	assert.Equal(t, trace.ActionSizeCeiling, it.Action)

	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "Max size reached")
}

func TestController_CountCeilingStops(t *testing.T) {
	f := newControllerFixture(t, day())
	f.cfg.MaxImages = 2
	f.rebuild()

	assert.Equal(t, Continue, f.ctrl.RunIteration().Outcome)
	assert.Equal(t, StopCountCeiling, f.ctrl.RunIteration().Outcome)

	assert.Equal(t, 2, f.budget.Count())
	assert.Len(t, f.durable.records, 2)
	assert.Len(t, f.clock.sleeps, 1)
}

func TestController_IterationErrors(t *testing.T) {
	garbage := shot{raw: []byte("definitely not a jpeg")}

	tests := []struct {
		name     string
		shot     shot
		setup    func(f *controllerFixture)
		wantKind ErrorKind
	}{
		{
			name:     "capture failure",
			shot:     shot{err: errors.New("camera busy")},
			wantKind: KindCapture,
		},
		{
			name:     "undecodable artifact",
			shot:     garbage,
			wantKind: KindDecode,
		},
		{
			name:     "position failure",
			shot:     day(),
			setup:    func(f *controllerFixture) { f.pos.failOn = map[int]bool{0: true} },
			wantKind: KindPosition,
		},
		{
			name:     "position panic",
			shot:     day(),
			setup:    func(f *controllerFixture) { f.pos.panicOn = map[int]bool{0: true} },
			wantKind: KindUnknown,
		},
		{
			name:     "durable log failure",
			shot:     day(),
			setup:    func(f *controllerFixture) { f.durable.err = errors.New("disk full") },
			wantKind: KindStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture(t, tt.shot)
			if tt.setup != nil {
				tt.setup(f)
			}

			res := f.ctrl.RunIteration()

			require.Error(t, res.Err)
			assert.Equal(t, tt.wantKind, KindOf(res.Err))
			assert.Equal(t, Continue, res.Outcome, "errors never end the run")

			// Nothing of the failed iteration survives.
			assert.Equal(t, 0.0, f.budget.Size())
			assert.Equal(t, 0, f.budget.Count())
			assert.Empty(t, f.durable.records)
			assert.Empty(t, f.index.records)
			assert.False(t, fileExists(imagePath(f.cfg, 0)))

			it, _ := f.trace.Last()
			assert.Equal(t, trace.ActionFailed, it.Action)
			assert.Equal(t, tt.wantKind.String(), it.ErrorKind)

			// Pacing still happens.
			assert.Equal(t, []time.Duration{f.cfg.Cadence}, f.clock.sleeps)
		})
	}
}

func TestController_IndexFailureDoesNotUndoCommit(t *testing.T) {
	f := newControllerFixture(t, day())
	f.index.err = errors.New("database is locked")
	hook := logtest.NewGlobal()

	res := f.ctrl.RunIteration()

	require.NoError(t, res.Err)
	assert.Len(t, f.durable.records, 1)
	assert.Equal(t, 1, f.budget.Count())
	assert.True(t, fileExists(imagePath(f.cfg, 0)))

	found := false
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "capture index append failed") {
			found = true
		}
	}
	assert.True(t, found, "index failure is logged as a warning")
}

func TestController_OverrunWarnsAndSkipsSleep(t *testing.T) {
	slow := day()
	slow.delay = 6 * time.Second
	f := newControllerFixture(t, slow)
	hook := logtest.NewGlobal()

	res := f.ctrl.RunIteration()

	require.NoError(t, res.Err)
	assert.Empty(t, f.clock.sleeps, "no sleep after an overrun")

	it, _ := f.trace.Last()
	assert.Equal(t, 6*time.Second, it.Elapsed)
	assert.Equal(t, 1200*time.Millisecond, it.Overrun)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Experiment is taking too long! (+1.200 seconds!)", hook.LastEntry().Message)
}

func TestController_PartialCadenceSleep(t *testing.T) {
	slow := night()
	slow.delay = 1800 * time.Millisecond
	f := newControllerFixture(t, slow)

	f.ctrl.RunIteration()

	assert.Equal(t, []time.Duration{3 * time.Second}, f.clock.sleeps)
}

func TestController_DiscardedSlotIsReused(t *testing.T) {
	f := newControllerFixture(t, night(), day())

	f.ctrl.RunIteration()
	f.ctrl.RunIteration()

	require.Len(t, f.durable.records, 1)
	assert.Equal(t, "Image_0.jpg", f.durable.records[0].FileName)
	assert.Equal(t, []string{"Image_0.jpg"}, listImages(t, f.cfg.ImageDir))

	assert.Equal(t, 0, f.trace.Iterations[0].Iteration)
	assert.Equal(t, 1, f.trace.Iterations[1].Iteration)
}

func TestController_StartsAtFirstSeq(t *testing.T) {
	f := newControllerFixture(t, shot{err: errors.New("camera busy")}, day())
	f.firstSeq = 5
	f.rebuild()

	f.ctrl.RunIteration()
	f.ctrl.RunIteration()

	require.Len(t, f.durable.records, 1)
	assert.Equal(t, 5, f.durable.records[0].Seq)
	assert.Equal(t, "Image_5.jpg", f.durable.records[0].FileName)
	assert.Equal(t, []string{"Image_5.jpg"}, listImages(t, f.cfg.ImageDir))
	assert.Equal(t, 5, f.trace.Iterations[0].Seq)
}

func TestController_LeavesOccupiedSlotAlone(t *testing.T) {
	// GIVEN a file this controller did not write sitting in its first slot
	f := newControllerFixture(t, day())
	earlier := []byte("committed by an earlier run")
	require.NoError(t, os.WriteFile(imagePath(f.cfg, 0), earlier, 0o644))

	// WHEN two iterations run
	first := f.ctrl.RunIteration()
	second := f.ctrl.RunIteration()

	// THEN the first fails without touching the file and the second moves past it
	require.Error(t, first.Err)
	assert.Equal(t, KindStorage, KindOf(first.Err))
	assert.Contains(t, first.Err.Error(), "already exists")
	require.NoError(t, second.Err)

	data, err := os.ReadFile(imagePath(f.cfg, 0))
	require.NoError(t, err)
	assert.Equal(t, earlier, data)

	assert.Equal(t, 1, f.camera.calls, "camera never writes into an occupied slot")
	require.Len(t, f.durable.records, 1)
	assert.Equal(t, "Image_1.jpg", f.durable.records[0].FileName)
}
