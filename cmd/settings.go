package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/orbitcam/orbitcam/device"
	"github.com/orbitcam/orbitcam/experiment"
	"github.com/orbitcam/orbitcam/position"
)

// envPrefix prefixes every environment variable the run command reads.
const envPrefix = "ORBITCAM_"

// settings is everything the run command needs: the experiment config plus
// the choice of collaborators and where diagnostics go.
type settings struct {
	Experiment *experiment.Config

	Device     string
	DeviceOpts device.Options
	Position   string
	PosOpts    position.Options

	IndexPath string // empty disables the capture index
	LogFile   string
	LogLevel  string
}

const (
	defaultDevice   = "still"
	defaultPosition = "groundtrack"
	defaultLogLevel = "info"
)

func defaultSettings(baseDir string) *settings {
	return &settings{
		Experiment: experiment.DefaultConfig(baseDir),
		Device:     defaultDevice,
		Position:   defaultPosition,
		PosOpts:    position.Options{Orbit: position.DefaultOrbit()},
		LogFile:    filepath.Join(baseDir, "logfile.txt"),
		LogLevel:   defaultLogLevel,
	}
}

// Validate checks the experiment config and the collaborator names.
func (s *settings) Validate() error {
	if err := s.Experiment.Validate(); err != nil {
		return err
	}
	if !device.IsValidDevice(s.Device) {
		return fmt.Errorf("%w: unknown camera device %q (valid: %s)", experiment.ErrInvalidConfig, s.Device, strings.Join(device.Names(), ", "))
	}
	if !position.IsValidSource(s.Position) {
		return fmt.Errorf("%w: unknown position source %q", experiment.ErrInvalidConfig, s.Position)
	}
	if s.Position == "groundtrack" && s.PosOpts.Orbit.Period <= 0 {
		return fmt.Errorf("%w: orbit period must be positive", experiment.ErrInvalidConfig)
	}
	return nil
}

// FileConfig is the YAML config file layout.
// Nil pointer fields mean "not set in YAML"; they leave the defaults alone.
type FileConfig struct {
	Run      RunSection      `yaml:"run"`
	Camera   CameraSection   `yaml:"camera"`
	Night    NightSection    `yaml:"night"`
	Paths    PathsSection    `yaml:"paths"`
	Position PositionSection `yaml:"position"`
	LogLevel *string         `yaml:"log_level"`
}

// RunSection holds the stop conditions and pacing.
type RunSection struct {
	Duration      *time.Duration `yaml:"duration"`
	Cadence       *time.Duration `yaml:"cadence"`
	Warmup        *time.Duration `yaml:"warmup"`
	MaxSize       *float64       `yaml:"max_size"`
	SizeUnitBytes *int64         `yaml:"size_unit_bytes"`
	MaxImages     *int           `yaml:"max_images"`
}

// CameraSection selects and configures the capture device.
type CameraSection struct {
	Device    *string  `yaml:"device"`
	Index     *int     `yaml:"index"`
	Command   *string  `yaml:"command"`
	Args      []string `yaml:"args"`
	Width     *int     `yaml:"width"`
	Height    *int     `yaml:"height"`
	FrameRate *int     `yaml:"frame_rate"`
}

// NightSection configures the brightness evaluator.
type NightSection struct {
	Threshold    *float64 `yaml:"threshold"`
	SampleStride *int     `yaml:"sample_stride"`
}

// PathsSection holds output locations.
type PathsSection struct {
	ImageDir    *string `yaml:"image_dir"`
	DataLog     *string `yaml:"data_log"`
	ImagePrefix *string `yaml:"image_prefix"`
	ImageExt    *string `yaml:"image_ext"`
	Index       *string `yaml:"index"`
	LogFile     *string `yaml:"log_file"`
}

// PositionSection selects and configures the position source.
type PositionSection struct {
	Source    *string       `yaml:"source"`
	Latitude  *float64      `yaml:"latitude"`
	Longitude *float64      `yaml:"longitude"`
	Orbit     *OrbitSection `yaml:"orbit"`
}

// OrbitSection overrides the ground-track orbit.
type OrbitSection struct {
	InclinationDeg *float64       `yaml:"inclination_deg"`
	Period         *time.Duration `yaml:"period"`
	Epoch          *time.Time     `yaml:"epoch"`
	NodeLonDeg     *float64       `yaml:"node_lon_deg"`
	ArgLatDeg      *float64       `yaml:"arg_lat_deg"`
}

// loadFileConfig reads a YAML config with strict field checking so typos
// fail instead of silently running with defaults.
func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var fc FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &fc, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (fc *FileConfig) apply(s *settings) {
	c := s.Experiment
	setIf(&c.Duration, fc.Run.Duration)
	setIf(&c.Cadence, fc.Run.Cadence)
	setIf(&c.WarmupDelay, fc.Run.Warmup)
	setIf(&c.MaxSize, fc.Run.MaxSize)
	setIf(&c.SizeUnitBytes, fc.Run.SizeUnitBytes)
	setIf(&c.MaxImages, fc.Run.MaxImages)

	setIf(&s.Device, fc.Camera.Device)
	setIf(&s.DeviceOpts.Index, fc.Camera.Index)
	setIf(&s.DeviceOpts.Command, fc.Camera.Command)
	if fc.Camera.Args != nil {
		s.DeviceOpts.Args = fc.Camera.Args
	}
	setIf(&c.Camera.Width, fc.Camera.Width)
	setIf(&c.Camera.Height, fc.Camera.Height)
	setIf(&c.Camera.FrameRate, fc.Camera.FrameRate)

	setIf(&c.NightThreshold, fc.Night.Threshold)
	setIf(&c.SampleStride, fc.Night.SampleStride)

	setIf(&c.ImageDir, fc.Paths.ImageDir)
	setIf(&c.DataLogPath, fc.Paths.DataLog)
	setIf(&c.ImagePrefix, fc.Paths.ImagePrefix)
	setIf(&c.ImageExt, fc.Paths.ImageExt)
	setIf(&s.IndexPath, fc.Paths.Index)
	setIf(&s.LogFile, fc.Paths.LogFile)

	setIf(&s.Position, fc.Position.Source)
	setIf(&s.PosOpts.Latitude, fc.Position.Latitude)
	setIf(&s.PosOpts.Longitude, fc.Position.Longitude)
	if o := fc.Position.Orbit; o != nil {
		setIf(&s.PosOpts.Orbit.InclinationDeg, o.InclinationDeg)
		setIf(&s.PosOpts.Orbit.Period, o.Period)
		setIf(&s.PosOpts.Orbit.Epoch, o.Epoch)
		setIf(&s.PosOpts.Orbit.NodeLonDeg, o.NodeLonDeg)
		setIf(&s.PosOpts.Orbit.ArgLatDeg, o.ArgLatDeg)
	}

	setIf(&s.LogLevel, fc.LogLevel)
}

// lookupFunc mirrors os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// envLookup layers the process environment over the variables of a .env
// file. A missing file is only an error when required is set.
func envLookup(dotenvPath string, required bool) (lookupFunc, error) {
	dot := map[string]string{}
	if dotenvPath != "" {
		m, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			dot = m
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("reading env file: %w", err)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dot[key]
		return v, ok
	}, nil
}

type envVar struct {
	name string
	set  func(s *settings, v string) error
}

func envString(dst func(s *settings) *string) func(*settings, string) error {
	return func(s *settings, v string) error { *dst(s) = v; return nil }
}

func envInt(dst func(s *settings) *int) func(*settings, string) error {
	return func(s *settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(s) = n
		return nil
	}
}

func envFloat(dst func(s *settings) *float64) func(*settings, string) error {
	return func(s *settings, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(s) = f
		return nil
	}
}

func envDuration(dst func(s *settings) *time.Duration) func(*settings, string) error {
	return func(s *settings, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(s) = d
		return nil
	}
}

// envVars lists the recognized ORBITCAM_* variables, without the prefix.
var envVars = []envVar{
	{"DURATION", envDuration(func(s *settings) *time.Duration { return &s.Experiment.Duration })},
	{"CADENCE", envDuration(func(s *settings) *time.Duration { return &s.Experiment.Cadence })},
	{"WARMUP", envDuration(func(s *settings) *time.Duration { return &s.Experiment.WarmupDelay })},
	{"MAX_SIZE", envFloat(func(s *settings) *float64 { return &s.Experiment.MaxSize })},
	{"MAX_IMAGES", envInt(func(s *settings) *int { return &s.Experiment.MaxImages })},
	{"NIGHT_THRESHOLD", envFloat(func(s *settings) *float64 { return &s.Experiment.NightThreshold })},
	{"DEVICE", envString(func(s *settings) *string { return &s.Device })},
	{"DEVICE_INDEX", envInt(func(s *settings) *int { return &s.DeviceOpts.Index })},
	{"DEVICE_COMMAND", envString(func(s *settings) *string { return &s.DeviceOpts.Command })},
	{"POSITION", envString(func(s *settings) *string { return &s.Position })},
	{"LATITUDE", envFloat(func(s *settings) *float64 { return &s.PosOpts.Latitude })},
	{"LONGITUDE", envFloat(func(s *settings) *float64 { return &s.PosOpts.Longitude })},
	{"IMAGE_DIR", envString(func(s *settings) *string { return &s.Experiment.ImageDir })},
	{"DATA_LOG", envString(func(s *settings) *string { return &s.Experiment.DataLogPath })},
	{"INDEX", envString(func(s *settings) *string { return &s.IndexPath })},
	{"LOG_FILE", envString(func(s *settings) *string { return &s.LogFile })},
	{"LOG_LEVEL", envString(func(s *settings) *string { return &s.LogLevel })},
}

func applyEnv(s *settings, lookup lookupFunc) error {
	for _, ev := range envVars {
		v, ok := lookup(envPrefix + ev.name)
		if !ok {
			continue
		}
		if err := ev.set(s, v); err != nil {
			return fmt.Errorf("%s%s=%q: %w", envPrefix, ev.name, v, err)
		}
	}
	return nil
}

// applyFlags copies only the flags the user actually set, so a flag's
// default never overrides a file or environment value.
func applyFlags(s *settings, fs *pflag.FlagSet) error {
	var errs []error
	get := func(name string, f func() error) {
		if fs.Changed(name) {
			errs = append(errs, f())
		}
	}
	c := s.Experiment
	get("duration", func() (err error) { c.Duration, err = fs.GetDuration("duration"); return })
	get("cadence", func() (err error) { c.Cadence, err = fs.GetDuration("cadence"); return })
	get("warmup", func() (err error) { c.WarmupDelay, err = fs.GetDuration("warmup"); return })
	get("max-size", func() (err error) { c.MaxSize, err = fs.GetFloat64("max-size"); return })
	get("max-images", func() (err error) { c.MaxImages, err = fs.GetInt("max-images"); return })
	get("night-threshold", func() (err error) { c.NightThreshold, err = fs.GetFloat64("night-threshold"); return })
	get("stride", func() (err error) { c.SampleStride, err = fs.GetInt("stride"); return })
	get("image-dir", func() (err error) { c.ImageDir, err = fs.GetString("image-dir"); return })
	get("data-log", func() (err error) { c.DataLogPath, err = fs.GetString("data-log"); return })
	get("device", func() (err error) { s.Device, err = fs.GetString("device"); return })
	get("device-index", func() (err error) { s.DeviceOpts.Index, err = fs.GetInt("device-index"); return })
	get("device-command", func() (err error) { s.DeviceOpts.Command, err = fs.GetString("device-command"); return })
	get("position", func() (err error) { s.Position, err = fs.GetString("position"); return })
	get("lat", func() (err error) { s.PosOpts.Latitude, err = fs.GetFloat64("lat"); return })
	get("lon", func() (err error) { s.PosOpts.Longitude, err = fs.GetFloat64("lon"); return })
	get("index", func() (err error) { s.IndexPath, err = fs.GetString("index"); return })
	get("log-file", func() (err error) { s.LogFile, err = fs.GetString("log-file"); return })
	get("log", func() (err error) { s.LogLevel, err = fs.GetString("log"); return })
	return errors.Join(errs...)
}

// loadSettings resolves settings from, lowest to highest precedence:
// built-in defaults, the --config YAML file, ORBITCAM_* variables (process
// environment over the .env file) and explicitly set flags.
func loadSettings(fs *pflag.FlagSet) (*settings, error) {
	envFile, _ := fs.GetString("env-file")
	lookup, err := envLookup(envFile, fs.Changed("env-file"))
	if err != nil {
		return nil, err
	}

	baseDir, _ := fs.GetString("base-dir")
	if v, ok := lookup(envPrefix + "BASE_DIR"); ok && !fs.Changed("base-dir") {
		baseDir = v
	}
	s := defaultSettings(baseDir)

	if path, _ := fs.GetString("config"); path != "" {
		fc, err := loadFileConfig(path)
		if err != nil {
			return nil, err
		}
		fc.apply(s)
	}
	if err := applyEnv(s, lookup); err != nil {
		return nil, err
	}
	if err := applyFlags(s, fs); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerRunFlags declares the run command's flags on fs. Defaults shown in
// help mirror the built-in defaults; only flags that were set are applied.
func registerRunFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.String("env-file", ".env", "Env file with ORBITCAM_* variables")
	fs.String("base-dir", ".", "Directory holding data/ and the diagnostic log")
	fs.String("log", defaultLogLevel, "Log level (trace, debug, info, warn, error, fatal, panic)")
	fs.String("log-file", "", "Diagnostic log file (default <base-dir>/logfile.txt)")

	fs.Duration("duration", experiment.DefaultDuration, "Run window length")
	fs.Duration("cadence", experiment.DefaultCadence, "Target time between capture starts")
	fs.Duration("warmup", experiment.DefaultWarmup, "Camera warm-up pause before the first capture")
	fs.Float64("max-size", experiment.DefaultMaxSize, "Storage ceiling in size units (MB by default)")
	fs.Int("max-images", experiment.DefaultMaxImages, "Maximum number of accepted images")
	fs.Float64("night-threshold", experiment.DefaultNightThreshold, "Brightness below which an image is discarded")
	fs.Int("stride", experiment.DefaultSampleStride, "Brightness sampling stride in pixels")
	fs.String("image-dir", "", "Image directory (default <base-dir>/data/images)")
	fs.String("data-log", "", "Durable capture log (default <base-dir>/data/location_data.txt)")

	fs.String("device", defaultDevice, "Camera device (opencv, still)")
	fs.Int("device-index", 0, "Video device index for the opencv device")
	fs.String("device-command", "", "Still-capture command for the still device")

	fs.String("position", defaultPosition, "Position source (static, groundtrack)")
	fs.Float64("lat", 0, "Latitude for the static position source")
	fs.Float64("lon", 0, "Longitude for the static position source")

	fs.String("index", "", "SQLite capture index path (disabled when empty)")
}
