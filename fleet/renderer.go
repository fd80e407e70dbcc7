package fleet

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterRenderer renders the fleet map as a labeled PNG. It shares the
// FleetRenderer's content but draws on an image.RGBA so robot IDs can be
// labeled with a bitmap font.
type RasterRenderer struct {
	*FleetRenderer
	PixelsPerMeter float64
	MaxDimension   int // clamp on output width/height in pixels
}

// NewRasterRenderer creates a raster renderer with default settings
func NewRasterRenderer(geofences []*Geofence, positions map[string]RobotPosition) *RasterRenderer {
	return &RasterRenderer{
		FleetRenderer:  NewFleetRenderer(geofences, positions),
		PixelsPerMeter: 2.0,
		MaxDimension:   2048,
	}
}

// RenderToPNG writes the fleet map as a PNG to the provided writer
func (r *RasterRenderer) RenderToPNG(w io.Writer) error {
	if !r.HasDrawableContent() {
		return fmt.Errorf("no drawable fleet content")
	}

	proj, minX, minY, maxX, maxY := r.projectedBounds()

	scale := r.PixelsPerMeter
	width := int((maxX-minX+2*r.Padding)*scale) + 1
	height := int((maxY-minY+2*r.Padding)*scale) + 1

	// Clamp degenerate and oversized outputs.
	if width < 64 {
		width = 64
	}
	if height < 64 {
		height = 64
	}
	if r.MaxDimension > 0 && (width > r.MaxDimension || height > r.MaxDimension) {
		shrink := float64(r.MaxDimension) / math.Max(float64(width), float64(height))
		scale *= shrink
		width = int((maxX-minX+2*r.Padding)*scale) + 1
		height = int((maxY-minY+2*r.Padding)*scale) + 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255 // white background
	}

	// Image y runs downward; world y (north) runs upward.
	toPixel := func(c Coordinate) (int, int) {
		x, y := proj.xy(c)
		px := int((x - minX + r.Padding) * scale)
		py := height - 1 - int((y-minY+r.Padding)*scale)
		return px, py
	}

	fenceColor := color.RGBA{66, 135, 245, 255}
	routeColor := color.RGBA{40, 160, 60, 255}

	// Geofence outlines.
	for _, g := range r.Geofences {
		if g == nil || g.Validate() != nil {
			continue
		}

		var outline []Coordinate
		switch g.Type {
		case GeofenceCircle:
			outline = append(outline, ringToCoordinates(circleRing(g.Coordinates[0], g.Radius))...)
		case GeofencePolygon:
			outline = append(outline, g.Coordinates...)
			outline = append(outline, g.Coordinates[0])
		case GeofenceRectangle:
			b := rectangleBound(g.Coordinates)
			outline = []Coordinate{
				{Latitude: b.Min[1], Longitude: b.Min[0]},
				{Latitude: b.Min[1], Longitude: b.Max[0]},
				{Latitude: b.Max[1], Longitude: b.Max[0]},
				{Latitude: b.Max[1], Longitude: b.Min[0]},
				{Latitude: b.Min[1], Longitude: b.Min[0]},
			}
		}

		for i := 1; i < len(outline); i++ {
			x1, y1 := toPixel(outline[i-1])
			x2, y2 := toPixel(outline[i])
			drawLine(img, x1, y1, x2, y2, fenceColor)
		}
	}

	// Route polyline and waypoint dots.
	if r.Route != nil && len(r.Waypoints) > 0 {
		byID := make(map[string]Waypoint, len(r.Waypoints))
		for _, wp := range r.Waypoints {
			byID[wp.ID] = wp
		}

		prevX, prevY := 0, 0
		started := false
		for _, id := range r.Route.WaypointIDs {
			wp, ok := byID[id]
			if !ok {
				continue
			}
			px, py := toPixel(wp.Coordinates)
			if started {
				drawLine(img, prevX, prevY, px, py, routeColor)
			}
			fillCircle(img, px, py, 3, routeColor)
			prevX, prevY = px, py
			started = true
		}
	}

	// Robot markers with ID labels, sorted for consistent layering.
	robotIDs := make([]string, 0, len(r.Positions))
	for id := range r.Positions {
		robotIDs = append(robotIDs, id)
	}
	sort.Strings(robotIDs)

	for _, id := range robotIDs {
		pos := r.Positions[id]
		px, py := toPixel(pos.Coordinates)

		markerColor := color.RGBA{255, 0, 0, 255}
		if c, ok := r.Colors[id]; ok {
			markerColor = nrgbaToRGBA(c)
		}

		fillCircle(img, px, py, 6, markerColor)
		drawText(img, px+9, py+4, id, color.RGBA{0, 0, 0, 255})
	}

	return png.Encode(w, img)
}

// ringToCoordinates converts an orb ring back to lat/lon coordinates
func ringToCoordinates(ring orb.Ring) []Coordinate {
	coords := make([]Coordinate, len(ring))
	for i, p := range ring {
		coords[i] = Coordinate{Latitude: p[1], Longitude: p[0]}
	}
	return coords
}

// drawLine draws a line segment using Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy

	for {
		img.Set(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

// fillCircle draws a filled disc of the given pixel radius
func fillCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				img.Set(cx+dx, cy+dy, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// ParseHexColor parses "#RRGGBB" into an NRGBA, defaulting to red
func ParseHexColor(hex string) color.NRGBA {
	defaultColor := color.NRGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return defaultColor
	}

	return color.NRGBA{r, g, b, 255}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
