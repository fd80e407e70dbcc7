package fleet

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// circleSegments is the number of chord segments used to approximate a
// circular fence as a polygon ring for display.
const circleSegments = 64

func coordToPoint(c Coordinate) orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// circleRing approximates a circle as a closed ring of chord segments
func circleRing(center Coordinate, radius float64) orb.Ring {
	ring := make(orb.Ring, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		bearing := float64(i) * 360 / circleSegments
		ring = append(ring, coordToPoint(destinationPoint(center, radius, bearing)))
	}
	ring = append(ring, ring[0])
	return ring
}

// GeofenceToFeature converts a geofence to a GeoJSON feature for display.
// Circles are approximated as 64-segment polygon rings; rectangles are
// exported as their bounding box, matching the containment approximation.
// Malformed fences return nil.
func GeofenceToFeature(g *Geofence) *geojson.Feature {
	if g == nil || g.Validate() != nil {
		return nil
	}

	var geom orb.Geometry
	switch g.Type {
	case GeofenceCircle:
		geom = orb.Polygon{circleRing(g.Coordinates[0], g.Radius)}
	case GeofencePolygon:
		ring := make(orb.Ring, 0, len(g.Coordinates)+1)
		for _, c := range g.Coordinates {
			ring = append(ring, coordToPoint(c))
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		geom = orb.Polygon{ring}
	case GeofenceRectangle:
		geom = rectangleBound(g.Coordinates).ToPolygon()
	default:
		return nil
	}

	f := geojson.NewFeature(geom)
	f.ID = g.ID
	f.Properties = geojson.Properties{
		"id":       g.ID,
		"name":     g.Name,
		"type":     string(g.Type),
		"isActive": g.IsActive,
	}
	if g.Type == GeofenceCircle {
		f.Properties["radius"] = g.Radius
	}
	return f
}

// GeofencesToFeatureCollection converts geofence definitions to a GeoJSON
// FeatureCollection, skipping malformed entries.
func GeofencesToFeatureCollection(geofences []*Geofence) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range geofences {
		if f := GeofenceToFeature(g); f != nil {
			fc.Append(f)
		}
	}
	return fc
}

// RouteToFeatureCollection converts an optimized path over the given
// waypoint set to a GeoJSON FeatureCollection: one LineString for the route
// plus one Point per waypoint annotated with its visit order.
func RouteToFeatureCollection(waypoints []Waypoint, path OptimizedPath) *geojson.FeatureCollection {
	byID := make(map[string]Waypoint, len(waypoints))
	for _, w := range waypoints {
		byID[w.ID] = w
	}

	fc := geojson.NewFeatureCollection()

	line := make(orb.LineString, 0, len(path.WaypointIDs))
	for _, id := range path.WaypointIDs {
		if w, ok := byID[id]; ok {
			line = append(line, coordToPoint(w.Coordinates))
		}
	}
	if len(line) >= 2 {
		routeFeature := geojson.NewFeature(line)
		routeFeature.Properties = geojson.Properties{
			"algorithm":         path.Algorithm,
			"totalDistance":     path.TotalDistance,
			"estimatedDuration": path.EstimatedDuration,
			"improvement":       path.Improvement,
		}
		fc.Append(routeFeature)
	}

	for order, id := range path.WaypointIDs {
		w, ok := byID[id]
		if !ok {
			continue
		}
		f := geojson.NewFeature(coordToPoint(w.Coordinates))
		f.ID = w.ID
		f.Properties = geojson.Properties{
			"id":    w.ID,
			"name":  w.Name,
			"type":  string(w.Type),
			"order": order,
		}
		fc.Append(f)
	}

	return fc
}

// PositionsToFeatureCollection converts a position snapshot to GeoJSON
// Point features, ordered by robot ID for stable output.
func PositionsToFeatureCollection(positions map[string]RobotPosition) *geojson.FeatureCollection {
	robotIDs := make([]string, 0, len(positions))
	for id := range positions {
		robotIDs = append(robotIDs, id)
	}
	sort.Strings(robotIDs)

	fc := geojson.NewFeatureCollection()
	for _, id := range robotIDs {
		pos := positions[id]
		f := geojson.NewFeature(coordToPoint(pos.Coordinates))
		f.ID = id
		f.Properties = geojson.Properties{
			"robotId":    id,
			"speed":      pos.Speed,
			"lastUpdate": pos.LastUpdate.Format(time.RFC3339),
		}
		fc.Append(f)
	}
	return fc
}
