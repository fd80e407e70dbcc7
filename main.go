package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// appRunner abstracts the App so run can be tested with a mock
type appRunner interface {
	ApplyOptions(opts AppOptions)
	RunValidate()
	RunOptimize()
	RunService()
}

// run parses CLI flags from args and dispatches to the appropriate mode.
// Output that is not log-based goes to out so tests can capture it.
func run(args []string, out io.Writer, app appRunner) error {
	fs := flag.NewFlagSet("fleetwatch", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to YAML configuration file")
	geofenceFile := fs.String("geofences", "", "Path to geofence definition file (overrides config)")
	waypointFile := fs.String("waypoints", "", "Path to waypoint definition file (overrides config)")
	violationLog := fs.String("violation-log", "", "Path to the persisted violation history file")
	mqttMode := fs.Bool("mqtt", false, "Subscribe to robot telemetry over MQTT")
	httpMode := fs.Bool("http", false, "Serve the dashboard HTTP API")
	httpPort := fs.Int("http-port", 8080, "HTTP server port")
	optimize := fs.Bool("optimize", false, "Plan a route over the waypoint file and exit")
	validate := fs.Bool("validate", false, "Validate the geofence file and exit")
	startWaypoint := fs.String("start", "", "Waypoint ID to start the route from")
	algorithm := fs.String("algorithm", "auto", "Path optimization algorithm (auto, nearest-neighbor, 2-opt, hybrid, smart)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	app.ApplyOptions(AppOptions{
		ConfigFile:    *configFile,
		GeofenceFile:  *geofenceFile,
		WaypointFile:  *waypointFile,
		ViolationLog:  *violationLog,
		StartWaypoint: *startWaypoint,
		Algorithm:     *algorithm,
		HTTPPort:      *httpPort,
		MqttMode:      *mqttMode,
		HTTPMode:      *httpMode,
	})

	switch {
	case *validate:
		app.RunValidate()
	case *optimize:
		app.RunOptimize()
	case *mqttMode || *httpMode:
		app.RunService()
	default:
		fmt.Fprintf(out, "fleetwatch version: %s\n", Version)
		fmt.Fprintln(out, "Use --mqtt to track robot telemetry over MQTT")
		fmt.Fprintln(out, "Use --http to serve the dashboard HTTP API")
		fmt.Fprintln(out, "Use --mqtt --http to run both together")
		fmt.Fprintln(out, "Use --optimize --waypoints=FILE to plan a route")
		fmt.Fprintln(out, "Use --validate --geofences=FILE to check a geofence file")
	}

	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		os.Exit(2)
	}
}
