// Package device provides named capture device implementations for the
// experiment loop. Implementations live in sub-packages and register
// themselves from init(); importing a sub-package makes its name available.
package device

import (
	"fmt"
	"sort"

	"github.com/orbitcam/orbitcam/experiment"
)

// Options carries the device-specific settings that are not part of
// experiment.CameraSettings.
type Options struct {
	Index   int      // video device index, for drivers that open /dev/videoN
	Command string   // still-capture executable, for command-driven devices
	Args    []string // extra arguments passed to Command
}

// Factory builds a camera from Options.
type Factory func(opts Options) (experiment.Camera, error)

var factories = map[string]Factory{}

// Register makes a device available under name. Registering the same name
// twice panics.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("device: Register requires a name and a factory")
	}
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("device: %q registered twice", name))
	}
	factories[name] = f
}

// IsValidDevice returns true if name is a registered device.
func IsValidDevice(name string) bool {
	_, ok := factories[name]
	return ok
}

// Names returns the registered device names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the named device.
// Panics on an unknown name; callers validate with IsValidDevice first.
func New(name string, opts Options) (experiment.Camera, error) {
	f, ok := factories[name]
	if !ok {
		panic(fmt.Sprintf("unknown camera device %q", name))
	}
	return f(opts)
}
