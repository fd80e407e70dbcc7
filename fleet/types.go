package fleet

import "time"

// Coordinate is a WGS84 position in decimal degrees with an optional
// altitude in meters. It is a value type with no identity.
type Coordinate struct {
	Latitude  float64  `json:"latitude" yaml:"latitude"`
	Longitude float64  `json:"longitude" yaml:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty" yaml:"altitude,omitempty"`
}

// GeofenceType identifies the shape of a geofence boundary
type GeofenceType string

const (
	GeofenceCircle    GeofenceType = "circle"
	GeofencePolygon   GeofenceType = "polygon"
	GeofenceRectangle GeofenceType = "rectangle"
)

// TriggerType identifies what robot behavior fires a geofence rule
type TriggerType string

const (
	TriggerEnter      TriggerType = "enter"
	TriggerExit       TriggerType = "exit"
	TriggerDwell      TriggerType = "dwell"
	TriggerSpeedLimit TriggerType = "speed_limit"
)

// ActionType identifies what a fired rule asks the fleet to do
type ActionType string

const (
	ActionAlert     ActionType = "alert"
	ActionStopRobot ActionType = "stop_robot"
	ActionSlowRobot ActionType = "slow_robot"
	ActionRedirect  ActionType = "redirect"
	ActionNotify    ActionType = "notify"
	ActionLog       ActionType = "log"
)

// ActionPriority orders actions for severity derivation
type ActionPriority string

const (
	PriorityLow      ActionPriority = "low"
	PriorityMedium   ActionPriority = "medium"
	PriorityHigh     ActionPriority = "high"
	PriorityCritical ActionPriority = "critical"
)

// Severity is the display severity attached to an emitted violation
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// RuleCondition carries the trigger-specific threshold for a rule.
// MinDuration applies to dwell triggers, MaxSpeed to speed_limit triggers.
type RuleCondition struct {
	MinDuration float64 `json:"minDuration,omitempty" yaml:"minDuration,omitempty"` // seconds
	MaxSpeed    float64 `json:"maxSpeed,omitempty" yaml:"maxSpeed,omitempty"`       // m/s
}

// GeofenceAction describes one response to a fired rule. The optional
// fields are variant-specific: SlowToSpeed for slow_robot, RedirectTo for
// redirect, NotifyChannel for notify. Other action types carry no extras.
type GeofenceAction struct {
	Type          ActionType     `json:"type" yaml:"type"`
	Priority      ActionPriority `json:"priority" yaml:"priority"`
	SlowToSpeed   *float64       `json:"slowToSpeed,omitempty" yaml:"slowToSpeed,omitempty"` // m/s
	RedirectTo    *string        `json:"redirectTo,omitempty" yaml:"redirectTo,omitempty"`   // waypoint ID
	NotifyChannel *string        `json:"notifyChannel,omitempty" yaml:"notifyChannel,omitempty"`
}

// GeofenceRule attaches a trigger and its responses to a geofence
type GeofenceRule struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name,omitempty" yaml:"name,omitempty"`
	Trigger   TriggerType      `json:"trigger" yaml:"trigger"`
	Condition *RuleCondition   `json:"condition,omitempty" yaml:"condition,omitempty"`
	Actions   []GeofenceAction `json:"actions" yaml:"actions"`
	IsActive  bool             `json:"isActive" yaml:"isActive"`
}

// Geofence is a named geographic boundary with attached trigger rules.
// Coordinate requirements by type: circle needs exactly 1 coordinate plus a
// positive Radius, polygon needs at least 3, rectangle needs exactly 4.
// An empty RobotIDs list means the fence applies to every robot.
type Geofence struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type        GeofenceType   `json:"type" yaml:"type"`
	Coordinates []Coordinate   `json:"coordinates" yaml:"coordinates"`
	Radius      float64        `json:"radius,omitempty" yaml:"radius,omitempty"` // meters, circle only
	Rules       []GeofenceRule `json:"rules,omitempty" yaml:"rules,omitempty"`
	IsActive    bool           `json:"isActive" yaml:"isActive"`
	RobotIDs    []string       `json:"robotIds,omitempty" yaml:"robotIds,omitempty"`
}

// AppliesTo reports whether the fence is scoped to the given robot.
// A fence with no RobotIDs applies to all robots.
func (g *Geofence) AppliesTo(robotID string) bool {
	if len(g.RobotIDs) == 0 {
		return true
	}
	for _, id := range g.RobotIDs {
		if id == robotID {
			return true
		}
	}
	return false
}

// Validate checks the shape invariants for the fence type. Note that the
// monitoring loop does not require valid fences: containment tests fail open
// (return false) on malformed shapes. Validate exists so definition files
// can be rejected at load time instead of silently never matching.
func (g *Geofence) Validate() error {
	if g.ID == "" {
		return errMissingField("geofence", "id")
	}
	switch g.Type {
	case GeofenceCircle:
		if len(g.Coordinates) != 1 {
			return errShape(g.ID, "circle requires exactly 1 coordinate")
		}
		if g.Radius <= 0 {
			return errShape(g.ID, "circle requires a positive radius")
		}
	case GeofencePolygon:
		if len(g.Coordinates) < 3 {
			return errShape(g.ID, "polygon requires at least 3 coordinates")
		}
	case GeofenceRectangle:
		if len(g.Coordinates) != 4 {
			return errShape(g.ID, "rectangle requires exactly 4 coordinates")
		}
	default:
		return errShape(g.ID, "unknown geofence type "+string(g.Type))
	}
	return nil
}

// GeofenceViolation is emitted by the monitor when a rule fires. It is
// immutable once emitted. Speed and DwellSeconds carry the raw metric that
// tripped the rule, when applicable, so the display layer can format them.
type GeofenceViolation struct {
	GeofenceID   string      `json:"geofenceId"`
	GeofenceName string      `json:"geofenceName,omitempty"`
	RobotID      string      `json:"robotId"`
	RuleID       string      `json:"ruleId"`
	RuleName     string      `json:"ruleName,omitempty"`
	Type         TriggerType `json:"violationType"`
	Coordinates  Coordinate  `json:"coordinates"`
	Timestamp    time.Time   `json:"timestamp"`
	Severity     Severity    `json:"severity"`
	Speed        float64     `json:"speed,omitempty"`        // m/s, speed_limit violations
	DwellSeconds float64     `json:"dwellSeconds,omitempty"` // dwell violations
}

// WaypointType is the semantic role of a waypoint in path planning
type WaypointType string

const (
	WaypointPickup      WaypointType = "pickup"
	WaypointDropoff     WaypointType = "dropoff"
	WaypointCheckpoint  WaypointType = "checkpoint"
	WaypointCharging    WaypointType = "charging"
	WaypointMaintenance WaypointType = "maintenance"
	WaypointCustom      WaypointType = "custom"
)

// Waypoint is a named point of interest used as optimizer input.
// The optimizer never mutates waypoints.
type Waypoint struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Coordinates Coordinate   `json:"coordinates" yaml:"coordinates"`
	Type        WaypointType `json:"type" yaml:"type"`
}

// OptimizedPath is the optimizer output: a visiting order plus distance and
// duration estimates. Improvement is the percentage saved versus visiting
// the waypoints in their supplied order.
type OptimizedPath struct {
	WaypointIDs       []string `json:"waypointIds"`
	TotalDistance     float64  `json:"totalDistance"`     // meters
	EstimatedDuration float64  `json:"estimatedDuration"` // seconds, rounded
	Improvement       float64  `json:"improvement"`       // percent vs naive order
	Algorithm         string   `json:"algorithm"`
}

// RobotConfig defines one robot from the config file
type RobotConfig struct {
	ID    string `yaml:"id" json:"id"`
	Topic string `yaml:"topic" json:"topic"` // MQTT position topic
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	MQTT         MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Robots       []RobotConfig `yaml:"robots" json:"robots"`
	GeofenceFile string        `yaml:"geofenceFile,omitempty" json:"geofenceFile,omitempty"`
	WaypointFile string        `yaml:"waypointFile,omitempty" json:"waypointFile,omitempty"`
	AverageSpeed float64       `yaml:"averageSpeed,omitempty" json:"averageSpeed,omitempty"` // m/s, duration estimates
	GridSpacing  float64       `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"`   // map grid spacing in meters
}

// GetRobotByID returns the robot config for the given ID
func (c *Config) GetRobotByID(id string) *RobotConfig {
	for i := range c.Robots {
		if c.Robots[i].ID == id {
			return &c.Robots[i]
		}
	}
	return nil
}

// severityRank orders priorities for max-severity derivation
var severityRank = map[ActionPriority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// SeverityForRule derives a violation severity from the rule's actions: the
// maximum action priority wins, mapped critical->critical, high->error,
// medium->warning, anything else ->info.
func SeverityForRule(rule *GeofenceRule) Severity {
	best := -1
	for _, a := range rule.Actions {
		if r, ok := severityRank[a.Priority]; ok && r > best {
			best = r
		}
	}
	switch best {
	case severityRank[PriorityCritical]:
		return SeverityCritical
	case severityRank[PriorityHigh]:
		return SeverityError
	case severityRank[PriorityMedium]:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
