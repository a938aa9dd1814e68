// Package position provides experiment.PositionSource implementations.
package position

import (
	"fmt"
	"time"

	"github.com/orbitcam/orbitcam/experiment"
)

// ValidSources is the set of recognized position source names.
// Shared by config validation and New().
var ValidSources = map[string]bool{"": true, "static": true, "groundtrack": true}

// IsValidSource returns true if name is a recognized position source.
func IsValidSource(name string) bool {
	return ValidSources[name]
}

// Options configures a position source. Static uses Latitude/Longitude;
// groundtrack uses the orbit fields.
type Options struct {
	Latitude  float64
	Longitude float64
	Orbit     Orbit
}

// New creates the named position source; "" selects static.
// Panics on an unknown name; callers validate with IsValidSource first.
func New(name string, opts Options) experiment.PositionSource {
	if !IsValidSource(name) {
		panic(fmt.Sprintf("unknown position source %q", name))
	}
	switch name {
	case "", "static":
		return Static{Coordinates: experiment.Coordinates{Latitude: opts.Latitude, Longitude: opts.Longitude}}
	case "groundtrack":
		return NewGroundTrack(opts.Orbit, time.Now)
	default:
		panic(fmt.Sprintf("unhandled position source %q", name))
	}
}

// Static always reports the same coordinates.
type Static struct {
	Coordinates experiment.Coordinates
}

// CurrentCoordinates implements experiment.PositionSource.
func (s Static) CurrentCoordinates() (experiment.Coordinates, error) {
	return s.Coordinates, nil
}
