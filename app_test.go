package main

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kwv/fleetwatch/fleet"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

const testConfigYAML = `
robots:
  - id: rover-1
    topic: fleet/rover-1/position
    color: "#00aa00"
  - id: rover-2
    topic: fleet/rover-2/position
`

const testGeofenceYAML = `
geofences:
  - id: plaza
    type: circle
    coordinates:
      - latitude: 40.7590
        longitude: -73.9850
    radius: 50
    isActive: true
    rules:
      - id: on-enter
        trigger: enter
        isActive: true
        actions:
          - type: alert
            priority: high
`

const testWaypointYAML = `
waypoints:
  - id: a
    type: pickup
    coordinates: {latitude: 40.7590, longitude: -73.9852}
  - id: b
    type: dropoff
    coordinates: {latitude: 40.7594, longitude: -73.9848}
`

// ---------------------------------------------------------------------------
// loadDefinitions
// ---------------------------------------------------------------------------

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.yaml", testConfigYAML)
	geofencePath := writeFile(t, dir, "geofences.yaml", testGeofenceYAML)
	waypointPath := writeFile(t, dir, "waypoints.yaml", testWaypointYAML)

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   configPath,
		GeofenceFile: geofencePath,
		WaypointFile: waypointPath,
	})

	if err := app.loadDefinitions(); err != nil {
		t.Fatalf("loadDefinitions failed: %v", err)
	}
	if len(app.Config.Robots) != 2 {
		t.Errorf("got %d robots, want 2", len(app.Config.Robots))
	}
	if len(app.Geofences) != 1 || app.Geofences[0].ID != "plaza" {
		t.Errorf("geofences = %+v", app.Geofences)
	}
	if len(app.Waypoints) != 2 {
		t.Errorf("got %d waypoints, want 2", len(app.Waypoints))
	}
}

func TestLoadDefinitionsPathsFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "geofences.yaml", testGeofenceYAML)
	configPath := writeFile(t, dir, "config.yaml",
		testConfigYAML+"geofenceFile: "+filepath.Join(dir, "geofences.yaml")+"\n")

	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: configPath})

	if err := app.loadDefinitions(); err != nil {
		t.Fatalf("loadDefinitions failed: %v", err)
	}
	if len(app.Geofences) != 1 {
		t.Errorf("got %d geofences from config path, want 1", len(app.Geofences))
	}
}

func TestLoadDefinitionsMissingConfig(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})

	if err := app.loadDefinitions(); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

// ---------------------------------------------------------------------------
// position handling
// ---------------------------------------------------------------------------

func TestHandlePositionFiresViolations(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "violations.json")

	app := NewApp()
	app.ViolationLog = logPath
	app.Geofences = []*fleet.Geofence{{
		ID:          "plaza",
		Type:        fleet.GeofenceCircle,
		Coordinates: []fleet.Coordinate{{Latitude: 40.7590, Longitude: -73.9850}},
		Radius:      50,
		IsActive:    true,
		Rules: []fleet.GeofenceRule{{
			ID:       "on-enter",
			Trigger:  fleet.TriggerEnter,
			Actions:  []fleet.GeofenceAction{{Type: fleet.ActionAlert, Priority: fleet.PriorityHigh}},
			IsActive: true,
		}},
	}}

	update := &fleet.PositionUpdate{
		Coordinates: fleet.Coordinate{Latitude: 40.7590, Longitude: -73.9850},
		Timestamp:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	app.handlePosition("rover-1", []byte("{}"), update, nil)

	history := app.Monitor.GetViolationHistory()
	if len(history) != 1 {
		t.Fatalf("got %d violations, want 1", len(history))
	}
	if history[0].RuleID != "on-enter" {
		t.Errorf("ruleId = %q", history[0].RuleID)
	}

	// The violation log was flushed to disk.
	loaded, err := fleet.LoadViolationLog(logPath)
	if err != nil {
		t.Fatalf("Failed to load violation log: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("persisted log has %d violations, want 1", len(loaded))
	}
}

func TestHandlePositionDropsUndecodable(t *testing.T) {
	app := NewApp()
	app.handlePosition("rover-1", []byte("garbage"), nil, os.ErrInvalid)

	if len(app.Monitor.GetPositions()) != 0 {
		t.Error("undecodable payload should not update positions")
	}
}

// ---------------------------------------------------------------------------
// display helpers
// ---------------------------------------------------------------------------

func TestRobotColors(t *testing.T) {
	app := NewApp()
	app.Config = &fleet.Config{Robots: []fleet.RobotConfig{
		{ID: "rover-1", Topic: "t1", Color: "#00aa00"},
		{ID: "rover-2", Topic: "t2"},
	}}

	colors := app.robotColors()
	if got, want := colors["rover-1"], (color.NRGBA{0, 170, 0, 255}); got != want {
		t.Errorf("rover-1 color = %v, want %v", got, want)
	}
	if _, ok := colors["rover-2"]; ok {
		t.Error("rover-2 has no configured color, should be absent")
	}
}

func TestRouteForDisplay(t *testing.T) {
	app := NewApp()
	app.Algorithm = "auto"

	if _, ok := app.routeForDisplay(); ok {
		t.Error("routeForDisplay should report false without waypoints")
	}

	app.Waypoints = []fleet.Waypoint{
		{ID: "a", Coordinates: fleet.Coordinate{Latitude: 0, Longitude: 0}},
		{ID: "b", Coordinates: fleet.Coordinate{Latitude: 0.001, Longitude: 0}},
	}
	route, ok := app.routeForDisplay()
	if !ok {
		t.Fatal("routeForDisplay should succeed with waypoints")
	}
	if len(route.WaypointIDs) != 2 {
		t.Errorf("route visits %d waypoints, want 2", len(route.WaypointIDs))
	}
}
