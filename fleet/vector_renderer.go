package fleet

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"sort"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// projection maps WGS84 coordinates to a local planar frame in meters,
// using an equirectangular approximation around the origin latitude. Good
// enough for site-scale fleet maps (a few kilometers across).
type projection struct {
	lat0, lon0 float64
	mPerDegLat float64
	mPerDegLon float64
}

func newProjection(lat0, lon0 float64) projection {
	degLen := EarthRadiusMeters * math.Pi / 180
	return projection{
		lat0:       lat0,
		lon0:       lon0,
		mPerDegLat: degLen,
		mPerDegLon: degLen * math.Cos(toRadians(lat0)),
	}
}

// xy projects a coordinate to local meters (x east, y north)
func (p projection) xy(c Coordinate) (float64, float64) {
	return (c.Longitude - p.lon0) * p.mPerDegLon, (c.Latitude - p.lat0) * p.mPerDegLat
}

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha.
// The canvas library expects premultiplied RGBA.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// FleetRenderer renders the fleet state (geofences, robot positions, and an
// optional optimized route) as vector graphics over a metric grid.
type FleetRenderer struct {
	Geofences   []*Geofence
	Positions   map[string]RobotPosition
	Waypoints   []Waypoint
	Route       *OptimizedPath
	Colors      map[string]color.NRGBA // robot ID -> marker color
	Padding     float64                // meters
	GridSpacing float64                // meters
}

// NewFleetRenderer creates a renderer with default settings
func NewFleetRenderer(geofences []*Geofence, positions map[string]RobotPosition) *FleetRenderer {
	return &FleetRenderer{
		Geofences:   geofences,
		Positions:   positions,
		Colors:      make(map[string]color.NRGBA),
		Padding:     25.0,
		GridSpacing: 50.0,
	}
}

// SetRoute attaches an optimized route to overlay on the map
func (r *FleetRenderer) SetRoute(waypoints []Waypoint, path OptimizedPath) {
	r.Waypoints = waypoints
	r.Route = &path
}

// HasDrawableContent reports whether anything would be rendered
func (r *FleetRenderer) HasDrawableContent() bool {
	return len(r.Geofences) > 0 || len(r.Positions) > 0 || len(r.Waypoints) > 0
}

// canvasRenderer is the subset of canvas renderers used here; both the svg
// and rasterizer backends implement it.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the fleet map as an SVG to the provided writer
func (r *FleetRenderer) RenderToSVG(w io.Writer) error {
	if !r.HasDrawableContent() {
		return fmt.Errorf("no drawable fleet content")
	}

	proj, minX, minY, maxX, maxY := r.projectedBounds()

	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, proj, minX, minY, maxX, maxY, width, height)
	return svgRenderer.Close()
}

// projectedBounds picks a local projection centered on the content and
// returns it with the projected content bounds in meters.
func (r *FleetRenderer) projectedBounds() (projection, float64, float64, float64, float64) {
	// Rough centroid over every coordinate we will draw.
	var sumLat, sumLon float64
	count := 0
	accumulate := func(c Coordinate) {
		sumLat += c.Latitude
		sumLon += c.Longitude
		count++
	}

	for _, g := range r.Geofences {
		for _, c := range g.Coordinates {
			accumulate(c)
		}
	}
	for _, pos := range r.Positions {
		accumulate(pos.Coordinates)
	}
	for _, w := range r.Waypoints {
		accumulate(w.Coordinates)
	}

	if count == 0 {
		return newProjection(0, 0), 0, 0, 0, 0
	}

	proj := newProjection(sumLat/float64(count), sumLon/float64(count))

	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	extend := func(x, y float64) {
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}

	for _, g := range r.Geofences {
		for _, c := range g.Coordinates {
			x, y := proj.xy(c)
			if g.Type == GeofenceCircle {
				extend(x-g.Radius, y-g.Radius)
				extend(x+g.Radius, y+g.Radius)
			} else {
				extend(x, y)
			}
		}
	}
	for _, pos := range r.Positions {
		x, y := proj.xy(pos.Coordinates)
		extend(x, y)
	}
	for _, w := range r.Waypoints {
		x, y := proj.xy(w.Coordinates)
		extend(x, y)
	}

	return proj, minX, minY, maxX, maxY
}

// renderToCanvas draws the fleet map onto a canvas renderer
func (r *FleetRenderer) renderToCanvas(renderer canvasRenderer, proj projection, minX, minY, maxX, maxY, width, height float64) {
	// White background.
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(c Coordinate) (float64, float64) {
		x, y := proj.xy(c)
		return (x - minX) + r.Padding, (y - minY) + r.Padding
	}

	// Grid lines.
	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.3
		gridStyle.Dashes = []float64{2.0, 2.0}

		for x := math.Floor(minX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo((x-minX)+r.Padding, r.Padding)
			gridPath.LineTo((x-minX)+r.Padding, (maxY-minY)+r.Padding)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
		for y := math.Floor(minY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo(r.Padding, (y-minY)+r.Padding)
			gridPath.LineTo((maxX-minX)+r.Padding, (y-minY)+r.Padding)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Geofences: filled semi-transparent with a solid outline. Inactive
	// fences are drawn outline-only.
	for _, g := range r.Geofences {
		if g == nil || g.Validate() != nil {
			continue
		}

		fenceStyle := canvas.DefaultStyle
		fenceStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(color.NRGBA{66, 135, 245, 60})}
		fenceStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(color.NRGBA{66, 135, 245, 255})}
		fenceStyle.StrokeWidth = 1.0
		if !g.IsActive {
			fenceStyle.Fill = canvas.Paint{Color: canvas.Transparent}
			fenceStyle.Dashes = []float64{3.0, 3.0}
		}

		switch g.Type {
		case GeofenceCircle:
			cx, cy := toCanvas(g.Coordinates[0])
			fencePath := canvas.Circle(g.Radius)
			fencePath = fencePath.Translate(cx, cy)
			renderer.RenderPath(fencePath, fenceStyle, canvas.Identity)
		case GeofencePolygon, GeofenceRectangle:
			corners := g.Coordinates
			if g.Type == GeofenceRectangle {
				// Draw the bounding box actually used for containment.
				b := rectangleBound(corners)
				corners = []Coordinate{
					{Latitude: b.Min[1], Longitude: b.Min[0]},
					{Latitude: b.Min[1], Longitude: b.Max[0]},
					{Latitude: b.Max[1], Longitude: b.Max[0]},
					{Latitude: b.Max[1], Longitude: b.Min[0]},
				}
			}
			fencePath := &canvas.Path{}
			for i, c := range corners {
				cx, cy := toCanvas(c)
				if i == 0 {
					fencePath.MoveTo(cx, cy)
				} else {
					fencePath.LineTo(cx, cy)
				}
			}
			fencePath.Close()
			renderer.RenderPath(fencePath, fenceStyle, canvas.Identity)
		}
	}

	// Optimized route polyline with waypoint dots.
	if r.Route != nil && len(r.Waypoints) > 0 {
		byID := make(map[string]Waypoint, len(r.Waypoints))
		for _, w := range r.Waypoints {
			byID[w.ID] = w
		}

		routeStyle := canvas.DefaultStyle
		routeStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		routeStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(color.NRGBA{40, 160, 60, 255})}
		routeStyle.StrokeWidth = 1.5

		routePath := &canvas.Path{}
		started := false
		for _, id := range r.Route.WaypointIDs {
			w, ok := byID[id]
			if !ok {
				continue
			}
			cx, cy := toCanvas(w.Coordinates)
			if !started {
				routePath.MoveTo(cx, cy)
				started = true
			} else {
				routePath.LineTo(cx, cy)
			}
		}
		if started {
			renderer.RenderPath(routePath, routeStyle, canvas.Identity)
		}

		dotStyle := canvas.DefaultStyle
		dotStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(color.NRGBA{40, 160, 60, 255})}
		dotStyle.Stroke = canvas.Paint{Color: canvas.Black}
		dotStyle.StrokeWidth = 0.4
		for _, id := range r.Route.WaypointIDs {
			w, ok := byID[id]
			if !ok {
				continue
			}
			cx, cy := toCanvas(w.Coordinates)
			dot := canvas.Circle(2.0)
			dot = dot.Translate(cx, cy)
			renderer.RenderPath(dot, dotStyle, canvas.Identity)
		}
	}

	// Robot markers, sorted by ID for deterministic output.
	robotIDs := make([]string, 0, len(r.Positions))
	for id := range r.Positions {
		robotIDs = append(robotIDs, id)
	}
	sort.Strings(robotIDs)

	for _, id := range robotIDs {
		pos := r.Positions[id]
		cx, cy := toCanvas(pos.Coordinates)

		markerColor, ok := r.Colors[id]
		if !ok {
			markerColor = color.NRGBA{255, 0, 0, 255} // default red
		}

		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(markerColor)}
		markerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		markerStyle.StrokeWidth = 0.6

		marker := canvas.Circle(3.0)
		marker = marker.Translate(cx, cy)
		renderer.RenderPath(marker, markerStyle, canvas.Identity)

		// Identifier tag above the marker. Full text rendering requires
		// font loading in tdewolff/canvas; the raster renderer carries
		// the labeled variant.
		tagStyle := canvas.DefaultStyle
		tagStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(markerColor)}
		tagStyle.Stroke = canvas.Paint{Color: canvas.Black}
		tagStyle.StrokeWidth = 0.2

		tagWidth, tagHeight := 6.0, 2.0
		tag := canvas.Rectangle(tagWidth, tagHeight)
		tag = tag.Translate(cx-tagWidth/2, cy+4.5)
		renderer.RenderPath(tag, tagStyle, canvas.Identity)
	}
}
