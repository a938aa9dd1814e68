package experiment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Default run parameters. The size ceiling keeps a small margin under the
// 3000 MB allowance for the durable log and diagnostic log.
const (
	DefaultDuration       = 177 * time.Minute
	DefaultCadence        = 4800 * time.Millisecond
	DefaultWarmup         = 2 * time.Second
	DefaultMaxSize        = 3000 - 6 // size units
	DefaultSizeUnitBytes  = 1_000_000
	DefaultMaxImages      = 2298
	DefaultWidth          = 2592
	DefaultHeight         = 1944
	DefaultFrameRate      = 15
	DefaultNightThreshold = 67
	// FallbackNightThreshold is the lower cut-off some deployments were
	// documented with. Nothing reads it: the loop uses Config.NightThreshold
	// and the check command defaults to DefaultNightThreshold.
	FallbackNightThreshold = 50
	DefaultSampleStride    = 6
	DefaultImagePrefix     = "Image_"
	DefaultImageExt        = ".jpg"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// CameraSettings is what the loop asks the capture device to configure.
type CameraSettings struct {
	Width     int // pixels
	Height    int // pixels
	FrameRate int // frames per second
}

// Config groups every parameter fixed at process start. Build it once, call
// Validate, then hand it to NewSupervisor by pointer; nothing mutates it after.
type Config struct {
	Duration    time.Duration // total run length, measured from Supervisor start
	Cadence     time.Duration // target interval between iteration starts
	WarmupDelay time.Duration // pause after configuring the camera

	MaxSize       float64 // cumulative accepted size ceiling, in size units
	SizeUnitBytes int64   // bytes per size unit (1e6 = MB)
	MaxImages     int     // accepted image count ceiling

	Camera CameraSettings

	NightThreshold float64 // brightness below this is night
	SampleStride   int     // pixel grid stride for the evaluator

	ImageDir    string
	DataLogPath string
	ImagePrefix string
	ImageExt    string
}

// DefaultConfig returns the flight configuration rooted at baseDir.
func DefaultConfig(baseDir string) *Config {
	dataDir := filepath.Join(baseDir, "data")
	return &Config{
		Duration:    DefaultDuration,
		Cadence:     DefaultCadence,
		WarmupDelay: DefaultWarmup,

		MaxSize:       DefaultMaxSize,
		SizeUnitBytes: DefaultSizeUnitBytes,
		MaxImages:     DefaultMaxImages,

		Camera: CameraSettings{
			Width:     DefaultWidth,
			Height:    DefaultHeight,
			FrameRate: DefaultFrameRate,
		},

		NightThreshold: DefaultNightThreshold,
		SampleStride:   DefaultSampleStride,

		ImageDir:    filepath.Join(dataDir, "images"),
		DataLogPath: filepath.Join(dataDir, "location_data.txt"),
		ImagePrefix: DefaultImagePrefix,
		ImageExt:    DefaultImageExt,
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration must be > 0, got %v", ErrInvalidConfig, c.Duration)
	case c.Cadence <= 0:
		return fmt.Errorf("%w: cadence must be > 0, got %v", ErrInvalidConfig, c.Cadence)
	case c.WarmupDelay < 0:
		return fmt.Errorf("%w: warmup delay must be >= 0, got %v", ErrInvalidConfig, c.WarmupDelay)
	case c.MaxSize <= 0:
		return fmt.Errorf("%w: max size must be > 0, got %g", ErrInvalidConfig, c.MaxSize)
	case c.SizeUnitBytes <= 0:
		return fmt.Errorf("%w: size unit must be > 0 bytes, got %d", ErrInvalidConfig, c.SizeUnitBytes)
	case c.MaxImages <= 0:
		return fmt.Errorf("%w: max images must be > 0, got %d", ErrInvalidConfig, c.MaxImages)
	case c.Camera.Width <= 0 || c.Camera.Height <= 0:
		return fmt.Errorf("%w: camera resolution must be positive, got %dx%d", ErrInvalidConfig, c.Camera.Width, c.Camera.Height)
	case c.Camera.FrameRate <= 0:
		return fmt.Errorf("%w: frame rate must be > 0, got %d", ErrInvalidConfig, c.Camera.FrameRate)
	case c.NightThreshold <= 0:
		return fmt.Errorf("%w: night threshold must be > 0, got %g", ErrInvalidConfig, c.NightThreshold)
	case c.SampleStride <= 0:
		return fmt.Errorf("%w: sample stride must be > 0, got %d", ErrInvalidConfig, c.SampleStride)
	case c.ImageDir == "":
		return fmt.Errorf("%w: image directory is empty", ErrInvalidConfig)
	case c.DataLogPath == "":
		return fmt.Errorf("%w: data log path is empty", ErrInvalidConfig)
	}
	return nil
}

// ImageName returns the artifact file name for sequence index seq.
func (c *Config) ImageName(seq int) string {
	return fmt.Sprintf("%s%d%s", c.ImagePrefix, seq, c.ImageExt)
}

// FirstFreeSeq returns the sequence index one past the highest artifact
// already in ImageDir, or 0 when there is none. A missing directory counts
// as empty.
func (c *Config) FirstFreeSeq() (int, error) {
	entries, err := os.ReadDir(c.ImageDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scanning image directory: %w", err)
	}
	next := 0
	for _, e := range entries {
		seq, ok := c.parseImageName(e.Name())
		if ok && seq >= next {
			next = seq + 1
		}
	}
	return next, nil
}

// parseImageName is the inverse of ImageName.
func (c *Config) parseImageName(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, c.ImagePrefix)
	if !ok {
		return 0, false
	}
	if digits, ok = strings.CutSuffix(digits, c.ImageExt); !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// SizeUnits converts a byte count into the configured size unit.
func (c *Config) SizeUnits(bytes int64) float64 {
	return float64(bytes) / float64(c.SizeUnitBytes)
}

// RunWindow is the [Start, End) interval a run is allowed to capture in.
type RunWindow struct {
	Start time.Time
	End   time.Time
}

// NewRunWindow computes the window once at startup.
func NewRunWindow(start time.Time, d time.Duration) RunWindow {
	return RunWindow{Start: start, End: start.Add(d)}
}

// Expired reports whether now is at or past the window end.
func (w RunWindow) Expired(now time.Time) bool {
	return !now.Before(w.End)
}
