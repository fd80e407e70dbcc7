package fleet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the unified configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate required fields. The broker is optional: without it the
	// daemon runs HTTP-only and MQTT stays disabled.
	if len(config.Robots) == 0 {
		return nil, fmt.Errorf("at least one robot must be defined")
	}
	for i, rc := range config.Robots {
		if rc.ID == "" {
			return nil, fmt.Errorf("robot[%d].id is required", i)
		}
		if rc.Topic == "" {
			return nil, fmt.Errorf("robot[%d].topic is required for %s", i, rc.ID)
		}
	}

	if config.AverageSpeed <= 0 {
		config.AverageSpeed = DefaultAverageSpeed
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// geofenceFile is the on-disk layout of a geofence definition file
type geofenceFile struct {
	Geofences []*Geofence `yaml:"geofences"`
}

// LoadGeofences loads geofence definitions from a YAML file. Definitions
// that violate the shape invariants are rejected here so they fail loudly at
// startup; a malformed fence that slips through to the monitor would
// silently never match (see IsRobotInGeofence).
func LoadGeofences(path string) ([]*Geofence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("geofence file not found: %s", path)
		}
		return nil, fmt.Errorf("reading geofence file: %w", err)
	}

	var file geofenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing geofence YAML: %w", err)
	}

	for i, g := range file.Geofences {
		if g == nil {
			return nil, fmt.Errorf("geofence[%d] is empty", i)
		}
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("geofence[%d]: %w", i, err)
		}
	}

	return file.Geofences, nil
}

// SaveGeofences writes geofence definitions to a YAML file
func SaveGeofences(path string, geofences []*Geofence) error {
	data, err := yaml.Marshal(geofenceFile{Geofences: geofences})
	if err != nil {
		return fmt.Errorf("marshaling geofence YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing geofence file: %w", err)
	}
	return nil
}

// waypointFile is the on-disk layout of a waypoint definition file
type waypointFile struct {
	Waypoints []Waypoint `yaml:"waypoints"`
}

// LoadWaypoints loads waypoint definitions from a YAML file
func LoadWaypoints(path string) ([]Waypoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("waypoint file not found: %s", path)
		}
		return nil, fmt.Errorf("reading waypoint file: %w", err)
	}

	var file waypointFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing waypoint YAML: %w", err)
	}

	for i, w := range file.Waypoints {
		if w.ID == "" {
			return nil, fmt.Errorf("waypoint[%d].id is required", i)
		}
	}

	return file.Waypoints, nil
}

func errMissingField(kind, field string) error {
	return fmt.Errorf("%s.%s is required", kind, field)
}

func errShape(id, msg string) error {
	return fmt.Errorf("geofence %s: %s", id, msg)
}
