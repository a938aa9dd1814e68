// Package still captures images by running an external still-capture
// command, such as libcamera-still or raspistill, once per frame.
package still

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orbitcam/orbitcam/device"
	"github.com/orbitcam/orbitcam/experiment"
)

// Name is the registry name of this device.
const Name = "still"

// DefaultCommand is used when Options.Command is empty.
const DefaultCommand = "libcamera-still"

func init() {
	device.Register(Name, func(opts device.Options) (experiment.Camera, error) {
		return New(opts.Command, opts.Args...), nil
	})
}

// Camera runs Command with Args followed by resolution and output flags.
// A capture takes as long as the command does; slow captures show up as
// cadence overruns in the loop.
type Camera struct {
	Command string
	Args    []string

	settings   experiment.CameraSettings
	configured bool
}

// New returns a Camera for command; an empty command selects DefaultCommand.
func New(command string, args ...string) *Camera {
	if command == "" {
		command = DefaultCommand
	}
	return &Camera{Command: command, Args: args}
}

// Configure checks that the command exists and stores the settings.
func (c *Camera) Configure(s experiment.CameraSettings) error {
	path, err := exec.LookPath(c.Command)
	if err != nil {
		return fmt.Errorf("still-capture command %q: %w", c.Command, err)
	}
	logrus.Debugf("[still] using %s", path)
	c.settings = s
	c.configured = true
	return nil
}

// Capture runs the command once and checks that it produced path.
func (c *Camera) Capture(path string) error {
	if !c.configured {
		return errors.New("still: camera not configured")
	}
	out, err := exec.Command(c.Command, c.argv(path)...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", c.Command, err, msg)
		}
		return fmt.Errorf("%s: %w", c.Command, err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s produced no image: %w", c.Command, err)
	}
	return nil
}

// Close is a no-op; each capture is a separate process.
func (c *Camera) Close() error {
	c.configured = false
	return nil
}

func (c *Camera) argv(path string) []string {
	argv := make([]string, 0, len(c.Args)+8)
	argv = append(argv, c.Args...)
	return append(argv,
		"--width", strconv.Itoa(c.settings.Width),
		"--height", strconv.Itoa(c.settings.Height),
		"--framerate", strconv.Itoa(c.settings.FrameRate),
		"-o", path,
	)
}
