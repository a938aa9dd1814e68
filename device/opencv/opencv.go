// Package opencv drives a V4L2/USB camera through OpenCV's VideoCapture.
package opencv

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/orbitcam/orbitcam/device"
	"github.com/orbitcam/orbitcam/experiment"
)

// Name is the registry name of this device.
const Name = "opencv"

// flushFrames is how many buffered frames are dropped before each read so
// the saved frame is current rather than one queued at the previous cadence.
const flushFrames = 4

func init() {
	device.Register(Name, func(opts device.Options) (experiment.Camera, error) {
		return New(opts.Index), nil
	})
}

// Camera captures single frames from a VideoCapture and writes them with
// IMWrite. The file format follows the extension of the target path.
type Camera struct {
	index  int
	webcam *gocv.VideoCapture
	frame  gocv.Mat
}

// New returns an unopened camera for the given device index.
func New(index int) *Camera {
	return &Camera{index: index}
}

// Configure opens the device and applies resolution and frame rate.
func (c *Camera) Configure(s experiment.CameraSettings) error {
	webcam, err := gocv.OpenVideoCapture(c.index)
	if err != nil {
		return fmt.Errorf("opening video device %d: %w", c.index, err)
	}
	if !webcam.IsOpened() {
		_ = webcam.Close()
		return fmt.Errorf("video device %d did not open", c.index)
	}
	for _, p := range properties(s) {
		webcam.Set(p.prop, p.value)
	}
	c.webcam = webcam
	c.frame = gocv.NewMat()

	got := webcam.Get(gocv.VideoCaptureFrameWidth)
	if int(got) != s.Width {
		logrus.Warnf("[opencv] requested width %d, device reports %.0f", s.Width, got)
	}
	return nil
}

// Capture reads one frame and writes it to path.
func (c *Camera) Capture(path string) error {
	if c.webcam == nil {
		return errors.New("opencv: camera not configured")
	}
	c.webcam.Grab(flushFrames)
	if ok := c.webcam.Read(&c.frame); !ok {
		return fmt.Errorf("reading frame from device %d", c.index)
	}
	if c.frame.Empty() {
		return fmt.Errorf("empty frame from device %d", c.index)
	}
	if ok := gocv.IMWrite(path, c.frame); !ok {
		return fmt.Errorf("writing frame to %s", path)
	}
	return nil
}

// Close releases the frame buffer and the device. Safe to call more than once.
func (c *Camera) Close() error {
	if c.webcam == nil {
		return nil
	}
	err := errors.Join(c.frame.Close(), c.webcam.Close())
	c.webcam = nil
	return err
}

type property struct {
	prop  gocv.VideoCaptureProperties
	value float64
}

func properties(s experiment.CameraSettings) []property {
	return []property{
		{gocv.VideoCaptureFrameWidth, float64(s.Width)},
		{gocv.VideoCaptureFrameHeight, float64(s.Height)},
		{gocv.VideoCaptureFPS, float64(s.FrameRate)},
	}
}
