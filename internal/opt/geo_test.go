package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	a := Point{Lat: 0, Lon: 0}
	assert.Zero(t, Distance(a, a))
	assert.InDelta(t, 111.3, Distance(a, Point{Lat: 1, Lon: 0}), 0.2)
	assert.InDelta(t, Distance(a, Point{Lat: 1, Lon: 1}), Distance(Point{Lat: 1, Lon: 1}, a), 1e-9)
}

func TestTravelTime(t *testing.T) {
	a, b := Point{Lat: 52.52, Lon: 13.40}, Point{Lat: 52.40, Lon: 13.05}
	g := Geo{SpeedKmh: 60}
	assert.InDelta(t, Distance(a, b), g.TravelTime(a, b), 1e-9)
	assert.InDelta(t, 2*g.TravelTime(a, b), Geo{SpeedKmh: 30}.TravelTime(a, b), 1e-9)
	assert.InDelta(t, Geo{SpeedKmh: DefaultSpeedKmh}.TravelTime(a, b), Geo{}.TravelTime(a, b), 1e-9)
}

func TestPointValidate(t *testing.T) {
	require.NoError(t, Point{Lat: -90, Lon: 180}.Validate())
	for _, p := range []Point{
		{Lat: 90.01, Lon: 0},
		{Lat: 0, Lon: -180.5},
		{Lat: math.NaN(), Lon: 0},
		{Lat: 0, Lon: math.Inf(1)},
	} {
		assert.Error(t, p.Validate(), "%+v", p)
	}
}
