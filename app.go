package main

import (
	"fmt"
	"image/color"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/kwv/fleetwatch/fleet"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *fleet.Config
	Geofences  []*fleet.Geofence
	Waypoints  []fleet.Waypoint
	Monitor    *fleet.GeofenceMonitor
	MQTTClient *fleet.MQTTClient
	Publisher  *fleet.AlertPublisher

	// CLI flags (effectively dependencies)
	ConfigFile    string
	GeofenceFile  string
	WaypointFile  string
	ViolationLog  string
	StartWaypoint string
	Algorithm     string
	HTTPPort      int
	MqttMode      bool
	HTTPMode      bool

	logMu sync.Mutex // serializes violation log flushes
}

// AppOptions carries parsed CLI flags into the App
type AppOptions struct {
	ConfigFile    string
	GeofenceFile  string
	WaypointFile  string
	ViolationLog  string
	StartWaypoint string
	Algorithm     string
	HTTPPort      int
	MqttMode      bool
	HTTPMode      bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Monitor: fleet.NewGeofenceMonitor(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.GeofenceFile = opts.GeofenceFile
	a.WaypointFile = opts.WaypointFile
	a.ViolationLog = opts.ViolationLog
	a.StartWaypoint = opts.StartWaypoint
	a.Algorithm = opts.Algorithm
	a.HTTPPort = opts.HTTPPort
	a.MqttMode = opts.MqttMode
	a.HTTPMode = opts.HTTPMode
}

// loadDefinitions loads the config file plus the geofence and waypoint
// definition files. Flag paths win over config paths. Both definition
// files are optional at this level; service modes warn when monitoring
// has nothing to do.
func (a *App) loadDefinitions() error {
	config, err := fleet.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.Config = config
	log.Printf("Loaded config from %s (%d robots)", a.ConfigFile, len(config.Robots))

	geofencePath := a.GeofenceFile
	if geofencePath == "" {
		geofencePath = config.GeofenceFile
	}
	if geofencePath != "" {
		geofences, err := fleet.LoadGeofences(geofencePath)
		if err != nil {
			return fmt.Errorf("loading geofences: %w", err)
		}
		a.Geofences = geofences
		log.Printf("Loaded %d geofences from %s", len(geofences), geofencePath)
	}

	waypointPath := a.WaypointFile
	if waypointPath == "" {
		waypointPath = config.WaypointFile
	}
	if waypointPath != "" {
		waypoints, err := fleet.LoadWaypoints(waypointPath)
		if err != nil {
			return fmt.Errorf("loading waypoints: %w", err)
		}
		a.Waypoints = waypoints
		log.Printf("Loaded %d waypoints from %s", len(waypoints), waypointPath)
	}

	return nil
}

// RunValidate loads and validates the geofence definition file, printing a
// per-fence summary
func (a *App) RunValidate() {
	path := a.GeofenceFile
	if path == "" {
		log.Fatal("--geofences is required for --validate")
	}

	geofences, err := fleet.LoadGeofences(path)
	if err != nil {
		log.Fatalf("Validation failed: %v", err)
	}

	fmt.Printf("%s: %d geofences OK\n", path, len(geofences))
	for _, g := range geofences {
		active := "inactive"
		if g.IsActive {
			active = "active"
		}
		scope := "all robots"
		if len(g.RobotIDs) > 0 {
			scope = strings.Join(g.RobotIDs, ", ")
		}
		fmt.Printf("  %-20s %-10s %2d rules  %-8s  applies to: %s\n",
			g.ID, g.Type, len(g.Rules), active, scope)
	}
}

// RunOptimize plans a route over the waypoint file and prints the result
func (a *App) RunOptimize() {
	path := a.WaypointFile
	if path == "" {
		log.Fatal("--waypoints is required for --optimize")
	}

	waypoints, err := fleet.LoadWaypoints(path)
	if err != nil {
		log.Fatalf("Error loading waypoints: %v", err)
	}

	result := fleet.OptimizePathWithOptions(waypoints, fleet.OptimizeOptions{
		StartWaypointID: a.StartWaypoint,
		Algorithm:       fleet.Algorithm(a.Algorithm),
	})

	fmt.Printf("Algorithm: %s\n", result.Algorithm)
	fmt.Printf("Total distance: %.1f m\n", result.TotalDistance)
	fmt.Printf("Estimated duration: %.0f s\n", result.EstimatedDuration)
	fmt.Printf("Improvement vs supplied order: %.1f%%\n", result.Improvement)

	byID := make(map[string]fleet.Waypoint, len(waypoints))
	for _, w := range waypoints {
		byID[w.ID] = w
	}
	fmt.Println("Visiting order:")
	for i, id := range result.WaypointIDs {
		fmt.Printf("  %2d. %-20s (%s)\n", i+1, id, byID[id].Type)
	}
}

// RunService starts the combined MQTT and/or HTTP service
func (a *App) RunService() {
	fmt.Println("Starting fleetwatch service...")

	if err := a.loadDefinitions(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if len(a.Geofences) == 0 {
		log.Println("Warning: no geofences loaded; violations will never fire")
	}

	// Reload persisted violation history, if any.
	if a.ViolationLog != "" {
		if history, err := fleet.LoadViolationLog(a.ViolationLog); err == nil {
			a.Monitor = fleet.NewGeofenceMonitorWithHistory(history)
			log.Printf("Loaded %d violations from %s", len(history), a.ViolationLog)
		}
	}

	if a.MqttMode {
		client, err := fleet.InitMQTT(a.Config, a.handlePosition)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if client == nil {
			log.Println("MQTT mode requested but no broker configured")
		} else {
			a.MQTTClient = client
			a.Publisher = fleet.NewAlertPublisher(client.GetClient(), a.Config)
			client.SetStatusHandler(func(robotID, status string) {
				if status == "charging" {
					log.Printf("Robot %s is charging", robotID)
				}
			})
		}
	}

	if a.HTTPMode {
		addr := fmt.Sprintf(":%d", a.HTTPPort)
		server := newHTTPServer(a)
		go func() {
			log.Printf("HTTP server listening on %s", addr)
			if err := http.ListenAndServe(addr, server); err != nil {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down...", sig)

	a.flushViolationLog()
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
}

// handlePosition feeds a decoded telemetry update through the monitor and
// publishes any violations it fires
func (a *App) handlePosition(robotID string, rawPayload []byte, update *fleet.PositionUpdate, err error) {
	if err != nil {
		log.Printf("Dropping telemetry for %s: %v (%d bytes)", robotID, err, len(rawPayload))
		return
	}

	a.Monitor.UpdatePositionAt(robotID, update.Coordinates, update.Timestamp)
	violations := a.Monitor.CheckViolations(a.Geofences)
	if len(violations) == 0 {
		return
	}

	for _, v := range violations {
		log.Printf("VIOLATION %s: robot=%s fence=%s rule=%s severity=%s",
			v.Type, v.RobotID, v.GeofenceID, v.RuleID, v.Severity)
		if a.Publisher != nil {
			if pubErr := a.Publisher.PublishViolation(v); pubErr != nil {
				log.Printf("Error publishing violation: %v", pubErr)
			}
		}
	}

	a.flushViolationLog()
}

// flushViolationLog persists the current violation history when a log path
// is configured
func (a *App) flushViolationLog() {
	if a.ViolationLog == "" {
		return
	}
	a.logMu.Lock()
	defer a.logMu.Unlock()
	if err := fleet.SaveViolationLog(a.Monitor.GetViolationHistory(), a.ViolationLog); err != nil {
		log.Printf("warning: failed to save violation log: %v", err)
	}
}

// robotColors builds the renderer color table from the config
func (a *App) robotColors() map[string]color.NRGBA {
	colors := make(map[string]color.NRGBA)
	if a.Config == nil {
		return colors
	}
	for _, rc := range a.Config.Robots {
		if rc.Color != "" {
			colors[rc.ID] = fleet.ParseHexColor(rc.Color)
		}
	}
	return colors
}

// routeForDisplay plans a route over the loaded waypoints for map overlays.
// Returns false when no waypoints are loaded.
func (a *App) routeForDisplay() (fleet.OptimizedPath, bool) {
	if len(a.Waypoints) == 0 {
		return fleet.OptimizedPath{}, false
	}
	opts := fleet.OptimizeOptions{
		StartWaypointID: a.StartWaypoint,
		Algorithm:       fleet.Algorithm(a.Algorithm),
	}
	if a.Config != nil {
		opts.AverageSpeed = a.Config.AverageSpeed
	}
	return fleet.OptimizePathWithOptions(a.Waypoints, opts), true
}
