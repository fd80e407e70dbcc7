package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDistance(t *testing.T) {
	t.Run("same point is zero", func(t *testing.T) {
		p := Coordinate{Latitude: 40.7590, Longitude: -73.9850}
		assert.Equal(t, 0.0, CalculateDistance(p, p))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		a := Coordinate{Latitude: 0, Longitude: 0}
		b := Coordinate{Latitude: 1, Longitude: 0}
		// 2*pi*R / 360 with R = 6371 km
		assert.InDelta(t, 111195.0, CalculateDistance(a, b), 1.0)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Coordinate{Latitude: 40.7590, Longitude: -73.9850}
		b := Coordinate{Latitude: 40.7614, Longitude: -73.9776}
		assert.InDelta(t, CalculateDistance(a, b), CalculateDistance(b, a), 1e-9)
	})

	t.Run("ignores altitude", func(t *testing.T) {
		alt := 120.0
		a := Coordinate{Latitude: 10, Longitude: 10}
		b := Coordinate{Latitude: 10, Longitude: 10, Altitude: &alt}
		assert.Equal(t, 0.0, CalculateDistance(a, b))
	})
}

func TestIsRobotInGeofenceCircle(t *testing.T) {
	fence := &Geofence{
		ID:          "plaza",
		Type:        GeofenceCircle,
		Coordinates: []Coordinate{{Latitude: 40.7590, Longitude: -73.9850}},
		Radius:      10,
	}

	tests := []struct {
		name     string
		position Coordinate
		want     bool
	}{
		{"at center", Coordinate{Latitude: 40.7590, Longitude: -73.9850}, true},
		{"a few meters away", Coordinate{Latitude: 40.75905, Longitude: -73.98505}, true},
		{"one block north", Coordinate{Latitude: 40.7600, Longitude: -73.9850}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRobotInGeofence(tt.position, fence))
		})
	}
}

func TestIsRobotInGeofencePolygon(t *testing.T) {
	fence := &Geofence{
		ID:   "yard",
		Type: GeofencePolygon,
		Coordinates: []Coordinate{
			{Latitude: 0, Longitude: 0},
			{Latitude: 0, Longitude: 1},
			{Latitude: 1, Longitude: 1},
			{Latitude: 1, Longitude: 0},
		},
	}

	tests := []struct {
		name     string
		position Coordinate
		want     bool
	}{
		{"centroid", Coordinate{Latitude: 0.5, Longitude: 0.5}, true},
		{"near a corner, inside", Coordinate{Latitude: 0.01, Longitude: 0.01}, true},
		{"outside to the east", Coordinate{Latitude: 0.5, Longitude: 1.5}, false},
		{"far away", Coordinate{Latitude: 45, Longitude: 45}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRobotInGeofence(tt.position, fence))
		})
	}
}

func TestIsRobotInGeofenceRectangle(t *testing.T) {
	fence := &Geofence{
		ID:   "dock",
		Type: GeofenceRectangle,
		Coordinates: []Coordinate{
			{Latitude: 40.0, Longitude: -74.0},
			{Latitude: 40.0, Longitude: -73.9},
			{Latitude: 40.1, Longitude: -73.9},
			{Latitude: 40.1, Longitude: -74.0},
		},
	}

	assert.True(t, IsRobotInGeofence(Coordinate{Latitude: 40.05, Longitude: -73.95}, fence))
	assert.False(t, IsRobotInGeofence(Coordinate{Latitude: 40.2, Longitude: -73.95}, fence))
	assert.False(t, IsRobotInGeofence(Coordinate{Latitude: 40.05, Longitude: -74.05}, fence))
}

func TestIsRobotInGeofenceMalformed(t *testing.T) {
	position := Coordinate{Latitude: 0.5, Longitude: 0.5}

	tests := []struct {
		name  string
		fence *Geofence
	}{
		{"nil fence", nil},
		{"circle without radius", &Geofence{
			Type:        GeofenceCircle,
			Coordinates: []Coordinate{{Latitude: 0.5, Longitude: 0.5}},
		}},
		{"circle with two centers", &Geofence{
			Type:        GeofenceCircle,
			Coordinates: []Coordinate{{}, {}},
			Radius:      100,
		}},
		{"polygon with two vertices", &Geofence{
			Type:        GeofencePolygon,
			Coordinates: []Coordinate{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 1}},
		}},
		{"rectangle with three corners", &Geofence{
			Type:        GeofenceRectangle,
			Coordinates: []Coordinate{{}, {Latitude: 1}, {Longitude: 1}},
		}},
		{"unknown type", &Geofence{
			Type:        GeofenceType("hexagon"),
			Coordinates: []Coordinate{{}, {}, {}, {}, {}, {}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, IsRobotInGeofence(position, tt.fence))
		})
	}
}

func TestDestinationPoint(t *testing.T) {
	start := Coordinate{Latitude: 40.7590, Longitude: -73.9850}

	t.Run("distance is preserved", func(t *testing.T) {
		for _, bearing := range []float64{0, 45, 90, 180, 270} {
			dest := destinationPoint(start, 500, bearing)
			assert.InDelta(t, 500, CalculateDistance(start, dest), 0.5)
		}
	})

	t.Run("north increases latitude only", func(t *testing.T) {
		dest := destinationPoint(start, 1000, 0)
		assert.Greater(t, dest.Latitude, start.Latitude)
		assert.InDelta(t, start.Longitude, dest.Longitude, 1e-9)
	})
}
