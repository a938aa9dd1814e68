package experiment

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orbitcam/orbitcam/internal/testutil"
)

var testEpoch = time.Date(2022, 4, 12, 10, 30, 0, 0, time.UTC)

// fakeClock only moves when something sleeps or a fake device advances it.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// shot scripts one Capture call.
type shot struct {
	img   image.Image   // written as PNG when set
	raw   []byte        // written verbatim when set (undecodable payloads)
	err   error         // returned without writing anything
	delay time.Duration // advances the clock before returning
}

// fakeCamera replays shots in order and repeats the last one once exhausted.
type fakeCamera struct {
	t            testing.TB
	clock        *fakeClock
	shots        []shot
	calls        int
	configured   []CameraSettings
	configureErr error
	closed       int
}

func (c *fakeCamera) Configure(s CameraSettings) error {
	c.configured = append(c.configured, s)
	return c.configureErr
}

func (c *fakeCamera) Capture(path string) error {
	if len(c.shots) == 0 {
		return errors.New("no shots scripted")
	}
	i := min(c.calls, len(c.shots)-1)
	c.calls++
	s := c.shots[i]
	if c.clock != nil && s.delay > 0 {
		c.clock.advance(s.delay)
	}
	switch {
	case s.err != nil:
		return s.err
	case s.raw != nil:
		return os.WriteFile(path, s.raw, 0o644)
	default:
		testutil.WritePNG(c.t, path, s.img)
		return nil
	}
}

func (c *fakeCamera) Close() error {
	c.closed++
	return nil
}

// fakePosition returns fixed coordinates; failOn/panicOn select calls (0-based).
type fakePosition struct {
	coords  Coordinates
	failOn  map[int]bool
	panicOn map[int]bool
	calls   int
}

func (p *fakePosition) CurrentCoordinates() (Coordinates, error) {
	i := p.calls
	p.calls++
	if p.panicOn[i] {
		panic("ephemeris exploded")
	}
	if p.failOn[i] {
		return Coordinates{}, errors.New("no fix")
	}
	return p.coords, nil
}

// memorySink collects records and optionally fails.
type memorySink struct {
	records []CaptureRecord
	err     error
}

func (s *memorySink) Append(rec CaptureRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

var (
	dayImage   = testutil.White
	nightImage = testutil.Black
)

func day() shot   { return shot{img: testutil.Solid(16, 16, dayImage)} }
func night() shot { return shot{img: testutil.Solid(16, 16, nightImage)} }

// daySize is the encoded size of one day() artifact, in bytes.
func daySize(t testing.TB) int64 {
	return int64(len(testutil.EncodePNG(t, testutil.Solid(16, 16, dayImage))))
}

// testConfig returns a config rooted in a temp dir with byte size units and
// no warm-up, so ceilings can be expressed in artifact sizes.
func testConfig(t testing.TB) *Config {
	cfg := DefaultConfig(t.TempDir())
	cfg.WarmupDelay = 0
	cfg.SizeUnitBytes = 1
	cfg.SampleStride = 1
	return cfg
}

func readLines(t testing.TB, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func listImages(t testing.TB, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func imagePath(cfg *Config, seq int) string {
	return filepath.Join(cfg.ImageDir, cfg.ImageName(seq))
}
