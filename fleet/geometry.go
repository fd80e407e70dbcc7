package fleet

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used for all geodesic math.
const EarthRadiusMeters = 6371000.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// CalculateDistance returns the great-circle (Haversine) distance between
// two coordinates in meters. Altitude is ignored.
func CalculateDistance(a, b Coordinate) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// IsRobotInGeofence reports whether a position lies within a geofence shape.
//
// Malformed fences (wrong coordinate counts, missing radius) return false
// rather than erroring: a bad definition silently never matches instead of
// crashing the monitoring loop.
func IsRobotInGeofence(position Coordinate, fence *Geofence) bool {
	if fence == nil {
		return false
	}
	switch fence.Type {
	case GeofenceCircle:
		if len(fence.Coordinates) != 1 || fence.Radius <= 0 {
			return false
		}
		return CalculateDistance(position, fence.Coordinates[0]) <= fence.Radius
	case GeofencePolygon:
		return pointInPolygon(position, fence.Coordinates)
	case GeofenceRectangle:
		return pointInRectangle(position, fence.Coordinates)
	default:
		return false
	}
}

// pointInPolygon runs the even-odd ray-casting test over the vertex sequence,
// treating longitude as x and latitude as y. Fewer than 3 vertices never match.
func pointInPolygon(p Coordinate, vertices []Coordinate) bool {
	if len(vertices) < 3 {
		return false
	}

	x, y := p.Longitude, p.Latitude
	inside := false

	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		xi, yi := vertices[i].Longitude, vertices[i].Latitude
		xj, yj := vertices[j].Longitude, vertices[j].Latitude

		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}

	return inside
}

// pointInRectangle tests the axis-aligned bounding box of the 4 supplied
// corners. This is an approximation that only holds for small, non-rotated
// rectangles; oriented rectangles are intentionally not supported, since
// existing fence definitions rely on the loose behavior.
func pointInRectangle(p Coordinate, corners []Coordinate) bool {
	if len(corners) != 4 {
		return false
	}
	return rectangleBound(corners).Contains(orb.Point{p.Longitude, p.Latitude})
}

// rectangleBound returns the lat/lon bounding box of the corner set.
func rectangleBound(corners []Coordinate) orb.Bound {
	b := orb.Bound{
		Min: orb.Point{corners[0].Longitude, corners[0].Latitude},
		Max: orb.Point{corners[0].Longitude, corners[0].Latitude},
	}
	for _, c := range corners[1:] {
		b = b.Extend(orb.Point{c.Longitude, c.Latitude})
	}
	return b
}

// destinationPoint returns the coordinate reached by travelling the given
// distance (meters) from start along the given bearing (degrees clockwise
// from north), on a spherical Earth.
func destinationPoint(start Coordinate, distance, bearing float64) Coordinate {
	d := distance / EarthRadiusMeters
	brng := toRadians(bearing)
	lat1 := toRadians(start.Latitude)
	lon1 := toRadians(start.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) +
		math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return Coordinate{
		Latitude:  lat2 * 180 / math.Pi,
		Longitude: lon2 * 180 / math.Pi,
	}
}
