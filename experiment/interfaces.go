package experiment

import (
	"fmt"
	"image"
	"os"
	"time"

	// Decoders for the artifact formats the camera drivers write.
	_ "image/jpeg"
	_ "image/png"
)

// Camera is the capture device. Capture writes one image to path; a failed
// Capture is an iteration error, never a fatal one.
type Camera interface {
	Configure(s CameraSettings) error
	Capture(path string) error
	Close() error
}

// Coordinates is a geodetic position in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// PositionSource reports where the platform is right now.
type PositionSource interface {
	CurrentCoordinates() (Coordinates, error)
}

// Clock is wall-clock time plus the pacing sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RecordSink accepts committed capture records.
type RecordSink interface {
	Append(rec CaptureRecord) error
}

// DecodeFunc turns an artifact on disk into a raster image.
type DecodeFunc func(path string) (image.Image, error)

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// DecodeFile decodes any registered image format (JPEG, PNG) from path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}
