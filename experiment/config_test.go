package experiment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/opt/cam")

	assert.Equal(t, 177*time.Minute, cfg.Duration)
	assert.Equal(t, 4800*time.Millisecond, cfg.Cadence)
	assert.Equal(t, 2994.0, cfg.MaxSize)
	assert.Equal(t, int64(1_000_000), cfg.SizeUnitBytes)
	assert.Equal(t, 2298, cfg.MaxImages)
	assert.Equal(t, CameraSettings{Width: 2592, Height: 1944, FrameRate: 15}, cfg.Camera)
	assert.Equal(t, 67.0, cfg.NightThreshold)
	assert.Equal(t, 6, cfg.SampleStride)
	assert.Equal(t, filepath.Join("/opt/cam", "data", "images"), cfg.ImageDir)
	assert.Equal(t, filepath.Join("/opt/cam", "data", "location_data.txt"), cfg.DataLogPath)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero duration", func(c *Config) { c.Duration = 0 }},
		{"negative cadence", func(c *Config) { c.Cadence = -time.Second }},
		{"negative warmup", func(c *Config) { c.WarmupDelay = -1 }},
		{"zero max size", func(c *Config) { c.MaxSize = 0 }},
		{"zero size unit", func(c *Config) { c.SizeUnitBytes = 0 }},
		{"zero max images", func(c *Config) { c.MaxImages = 0 }},
		{"zero width", func(c *Config) { c.Camera.Width = 0 }},
		{"zero frame rate", func(c *Config) { c.Camera.FrameRate = 0 }},
		{"zero threshold", func(c *Config) { c.NightThreshold = 0 }},
		{"zero stride", func(c *Config) { c.SampleStride = 0 }},
		{"no image dir", func(c *Config) { c.ImageDir = "" }},
		{"no data log", func(c *Config) { c.DataLogPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestConfig_ImageName(t *testing.T) {
	cfg := DefaultConfig("")
	assert.Equal(t, "Image_0.jpg", cfg.ImageName(0))
	assert.Equal(t, "Image_2297.jpg", cfg.ImageName(2297))

	cfg.ImageExt = ".png"
	assert.Equal(t, "Image_3.png", cfg.ImageName(3))
}

func TestConfig_FirstFreeSeq(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  int
	}{
		{"empty directory", nil, 0},
		{"one image", []string{"Image_0.jpg"}, 1},
		{"gap keeps the highest", []string{"Image_0.jpg", "Image_7.jpg", "Image_3.jpg"}, 8},
		{"leading zeros", []string{"Image_0012.jpg"}, 13},
		{
			"ignores other names",
			[]string{"Image_9.png", "Image_.jpg", "Image_-4.jpg", "Image_+5.jpg", "Image_2.jpg.tmp", "notes.txt", "Image_1.jpg"},
			2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			require.NoError(t, os.MkdirAll(cfg.ImageDir, 0o755))
			for _, name := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(cfg.ImageDir, name), []byte("x"), 0o644))
			}

			got, err := cfg.FirstFreeSeq()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_FirstFreeSeq_MissingDirectory(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())

	got, err := cfg.FirstFreeSeq()

	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestConfig_SizeUnits(t *testing.T) {
	cfg := DefaultConfig("")
	assert.Equal(t, 1.5, cfg.SizeUnits(1_500_000))
}

func TestRunWindow_Expired(t *testing.T) {
	w := NewRunWindow(testEpoch, time.Minute)

	assert.Equal(t, testEpoch.Add(time.Minute), w.End)
	assert.False(t, w.Expired(testEpoch))
	assert.False(t, w.Expired(w.End.Add(-time.Nanosecond)))
	assert.True(t, w.Expired(w.End), "the end instant is outside the window")
	assert.True(t, w.Expired(w.End.Add(time.Hour)))
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "capture", KindCapture.String())
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
}

func TestKindOf_UnwrapsIterationError(t *testing.T) {
	cause := errors.New("lens cap on")
	err := fmt.Errorf("wrapped: %w", iterationError(KindCapture, 3, cause))

	assert.Equal(t, KindCapture, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.Contains(t, err.Error(), "iteration for 3: capture error: lens cap on")
}
