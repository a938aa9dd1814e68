package position

import (
	"errors"
	"math"
	"time"

	"github.com/orbitcam/orbitcam/experiment"
)

// earthRotationRate is the sidereal rotation rate of the Earth in rad/s.
const earthRotationRate = 7.2921159e-5

// Orbit describes a circular orbit by its sub-satellite geometry at Epoch.
// Perturbations (J2 node regression, drag) are not modelled, so the estimate
// drifts over days; refresh Epoch from a recent pass for multi-hour runs.
type Orbit struct {
	InclinationDeg float64       // orbital inclination
	Period         time.Duration // time for one revolution
	Epoch          time.Time     // instant the fields below refer to
	NodeLonDeg     float64       // longitude of the ascending node at Epoch
	ArgLatDeg      float64       // argument of latitude at Epoch, 0 = ascending node
}

// DefaultOrbit is a representative ISS orbit.
func DefaultOrbit() Orbit {
	return Orbit{
		InclinationDeg: 51.64,
		Period:         92*time.Minute + 54*time.Second,
		Epoch:          time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

// GroundTrack estimates the sub-satellite point of a circular orbit.
type GroundTrack struct {
	orbit Orbit
	now   func() time.Time
}

// NewGroundTrack creates a GroundTrack that reads the time from now.
func NewGroundTrack(orbit Orbit, now func() time.Time) *GroundTrack {
	return &GroundTrack{orbit: orbit, now: now}
}

// CurrentCoordinates implements experiment.PositionSource.
func (g *GroundTrack) CurrentCoordinates() (experiment.Coordinates, error) {
	return g.At(g.now())
}

// At returns the sub-satellite point at t.
func (g *GroundTrack) At(t time.Time) (experiment.Coordinates, error) {
	if g.orbit.Period <= 0 {
		return experiment.Coordinates{}, errors.New("groundtrack: orbit period must be positive")
	}
	dt := t.Sub(g.orbit.Epoch).Seconds()
	inc := radians(g.orbit.InclinationDeg)
	u := radians(g.orbit.ArgLatDeg) + 2*math.Pi*dt/g.orbit.Period.Seconds()

	lat := math.Asin(math.Sin(inc) * math.Sin(u))
	lon := radians(g.orbit.NodeLonDeg) + math.Atan2(math.Cos(inc)*math.Sin(u), math.Cos(u)) - earthRotationRate*dt

	return experiment.Coordinates{
		Latitude:  degrees(lat),
		Longitude: normalizeLon(degrees(lon)),
	}, nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// normalizeLon maps a longitude in degrees into [-180, 180).
func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
