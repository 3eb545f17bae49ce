package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance_KnownCities(t *testing.T) {
	paris := Point{Lat: 48.8566, Lng: 2.3522}
	london := Point{Lat: 51.5074, Lng: -0.1278}

	assert.InDelta(t, 343.5, Distance(paris, london), 1.0)
}

func TestDistance_Properties(t *testing.T) {
	points := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 40.7128, Lng: -74.0060},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 89.9, Lng: 45},
		{Lat: -45, Lng: -179.9},
		{Lat: 45, Lng: 179.9},
	}

	for _, a := range points {
		assert.Zero(t, Distance(a, a), "distance to self")
		for _, b := range points {
			assert.Equal(t, Distance(a, b), Distance(b, a), "symmetry for %v %v", a, b)
			assert.GreaterOrEqual(t, Distance(a, b), 0.0)
		}
	}
}

func TestDistance_AlongMeridian(t *testing.T) {
	// one degree of latitude is R*pi/180 km
	got := Distance(Point{Lat: 10, Lng: 20}, Point{Lat: 11, Lng: 20})
	assert.InDelta(t, EarthRadiusKm*math.Pi/180, got, 1e-9)
}

func TestDistance_Antipodal(t *testing.T) {
	got := Distance(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 180})
	assert.InDelta(t, math.Pi*EarthRadiusKm, got, 1e-6)
}
