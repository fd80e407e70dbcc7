package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kwv/fleetwatch/fleet"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status        string    `json:"status"`
			Timestamp     time.Time `json:"timestamp"`
			RobotsTracked int       `json:"robotsTracked"`
			Geofences     int       `json:"geofences"`
			MQTTConnected bool      `json:"mqttConnected"`
		}{
			Status:        "ok",
			Timestamp:     time.Now(),
			RobotsTracked: len(app.Monitor.GetPositions()),
			Geofences:     len(app.Geofences),
			MQTTConnected: app.MQTTClient != nil && app.MQTTClient.IsConnected(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Current positions as plain JSON
	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(app.Monitor.GetPositions()); err != nil {
			log.Printf("Error encoding positions: %v", err)
		}
	})

	// Current positions as GeoJSON
	mux.HandleFunc("/positions.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		fc := fleet.PositionsToFeatureCollection(app.Monitor.GetPositions())
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("Error encoding positions GeoJSON: %v", err)
		}
	})

	// Violation history; DELETE clears it
	mux.HandleFunc("/violations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			app.Monitor.ClearHistory()
			app.flushViolationLog()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		history := app.Monitor.GetViolationHistory()
		if history == nil {
			history = []fleet.GeofenceViolation{}
		}
		if err := json.NewEncoder(w).Encode(history); err != nil {
			log.Printf("Error encoding violations: %v", err)
		}
	})

	// Geofence definitions as GeoJSON
	mux.HandleFunc("/geofences.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		fc := fleet.GeofencesToFeatureCollection(app.Geofences)
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("Error encoding geofences GeoJSON: %v", err)
		}
	})

	// Optimized route over the loaded waypoints as GeoJSON
	mux.HandleFunc("/route.geojson", func(w http.ResponseWriter, r *http.Request) {
		route, ok := app.routeForDisplay()
		if !ok {
			http.Error(w, "No waypoints loaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		fc := fleet.RouteToFeatureCollection(app.Waypoints, route)
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("Error encoding route GeoJSON: %v", err)
		}
	})

	// Fleet map as SVG
	mux.HandleFunc("/fleet.svg", func(w http.ResponseWriter, r *http.Request) {
		renderer := fleet.NewFleetRenderer(app.Geofences, app.Monitor.GetPositions())
		renderer.Colors = app.robotColors()
		if app.Config != nil && app.Config.GridSpacing > 0 {
			renderer.GridSpacing = app.Config.GridSpacing
		}
		if route, ok := app.routeForDisplay(); ok {
			renderer.SetRoute(app.Waypoints, route)
		}

		if !renderer.HasDrawableContent() {
			http.Error(w, "No drawable fleet content", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error encoding fleet SVG: %v", err)
		}
	})

	// Fleet map as labeled PNG
	mux.HandleFunc("/fleet.png", func(w http.ResponseWriter, r *http.Request) {
		renderer := fleet.NewRasterRenderer(app.Geofences, app.Monitor.GetPositions())
		renderer.Colors = app.robotColors()
		if route, ok := app.routeForDisplay(); ok {
			renderer.SetRoute(app.Waypoints, route)
		}

		if !renderer.HasDrawableContent() {
			http.Error(w, "No drawable fleet content", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToPNG(w); err != nil {
			log.Printf("Error encoding fleet PNG: %v", err)
		}
	})

	// On-demand path optimization over caller-supplied waypoints
	mux.HandleFunc("/optimize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Waypoints       []fleet.Waypoint `json:"waypoints"`
			StartWaypointID string           `json:"startWaypointId,omitempty"`
			Algorithm       string           `json:"algorithm,omitempty"`
			AverageSpeed    float64          `json:"averageSpeed,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		result := fleet.OptimizePathWithOptions(req.Waypoints, fleet.OptimizeOptions{
			StartWaypointID: req.StartWaypointID,
			Algorithm:       fleet.Algorithm(req.Algorithm),
			AverageSpeed:    req.AverageSpeed,
		})

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			log.Printf("Error encoding optimize result: %v", err)
		}
	})

	// Default route serves a minimal HTML page embedding the SVG map
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>fleetwatch</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/fleet.svg" alt="Fleet Map">
</body>
</html>`))
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}
