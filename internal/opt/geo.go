package opt

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/pkg/errors"
)

// DefaultSpeedKmh is the average travel speed used to turn distance into time.
const DefaultSpeedKmh = 50.0

// Validate rejects NaN, infinities and coordinates outside the WGS84 range.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return errors.Errorf("coordinate (%v, %v) is not a finite number", p.Lat, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return errors.Errorf("coordinate (%v, %v) is outside valid bounds", p.Lat, p.Lon)
	}
	return nil
}

func (p Point) orb() orb.Point { return orb.Point{p.Lon, p.Lat} }

// Distance returns the great-circle distance between a and b in kilometers.
func Distance(a, b Point) float64 {
	return geo.DistanceHaversine(a.orb(), b.orb()) / 1000
}

// Geo converts distances into travel times at a fixed average speed.
type Geo struct {
	SpeedKmh float64
}

// TravelTime returns the driving time from a to b in minutes.
func (g Geo) TravelTime(a, b Point) float64 {
	return g.minutesFor(Distance(a, b))
}

func (g Geo) minutesFor(km float64) float64 {
	speed := g.SpeedKmh
	if speed <= 0 {
		speed = DefaultSpeedKmh
	}
	return km / speed * 60
}
