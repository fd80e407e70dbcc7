package fleet

import (
	"sort"
	"sync"
	"time"
)

// RobotPosition is a snapshot of a robot's tracked state, as returned by
// GetPositions for the HTTP layer.
type RobotPosition struct {
	RobotID     string     `json:"robotId"`
	Coordinates Coordinate `json:"coordinates"`
	Speed       float64    `json:"speed"` // m/s, derived from the last two samples
	LastUpdate  time.Time  `json:"lastUpdate"`
}

// robotState is the monitor-internal tracking record for one robot
type robotState struct {
	current    Coordinate
	previous   *Coordinate
	lastUpdate time.Time
	speed      float64
}

// fenceState tracks one robot's relationship to one geofence: a two-state
// machine (outside/inside) plus the dwell timer, which is set when
// containment becomes true and cleared when it becomes false.
type fenceState struct {
	inside     bool
	dwellStart time.Time
}

// GeofenceMonitor tracks robot positions and evaluates geofence rules.
//
// The monitor owns all of its state; callers interact only through the
// exported methods, which are safe for concurrent use (the MQTT layer feeds
// positions from broker callback goroutines). Rule evaluation itself is
// synchronous pure computation with no I/O.
//
// Enter and exit triggers are edge-triggered: they fire once per containment
// transition. Dwell triggers re-fire on every evaluation once the robot has
// been inside for at least the configured duration; callers that want a
// single alert per dwell period must de-duplicate downstream.
type GeofenceMonitor struct {
	mu         sync.Mutex
	robots     map[string]*robotState
	fences     map[string]map[string]*fenceState // robotID -> geofenceID
	violations []GeofenceViolation
}

// NewGeofenceMonitor creates an empty monitor
func NewGeofenceMonitor() *GeofenceMonitor {
	return &GeofenceMonitor{
		robots: make(map[string]*robotState),
		fences: make(map[string]map[string]*fenceState),
	}
}

// NewGeofenceMonitorWithHistory creates a monitor seeded with a previously
// persisted violation history (see LoadViolationLog).
func NewGeofenceMonitorWithHistory(history []GeofenceViolation) *GeofenceMonitor {
	m := NewGeofenceMonitor()
	m.violations = append(m.violations, history...)
	return m
}

// UpdatePosition records a new position sample for a robot, stamped with the
// current wall-clock time.
func (m *GeofenceMonitor) UpdatePosition(robotID string, position Coordinate) {
	m.UpdatePositionAt(robotID, position, time.Now())
}

// UpdatePositionAt records a position sample with an explicit timestamp.
// Telemetry payloads carry their own capture time, which keeps speed and
// dwell math correct when messages arrive late.
//
// Speed is derived as distance/Δt against the previous sample, and defined
// as 0 when Δt is zero or negative.
func (m *GeofenceMonitor) UpdatePositionAt(robotID string, position Coordinate, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.robots[robotID]
	if !ok {
		m.robots[robotID] = &robotState{
			current:    position,
			lastUpdate: timestamp,
		}
		return
	}

	prev := st.current
	dt := timestamp.Sub(st.lastUpdate).Seconds()
	if dt > 0 {
		st.speed = CalculateDistance(prev, position) / dt
	} else {
		st.speed = 0
	}

	st.previous = &prev
	st.current = position
	st.lastUpdate = timestamp
}

// CheckViolations evaluates all active rules of all active geofences against
// the tracked robots and returns the violations newly fired by this call.
// Robots are evaluated in ID order, fences in argument order, rules in
// declaration order, so the returned slice has a deterministic insertion
// order. Fired violations are also appended to the monitor's history.
//
// Dwell is evaluated against each robot's latest sample timestamp rather
// than the wall clock, so a quiet robot does not accrue dwell time between
// telemetry updates.
func (m *GeofenceMonitor) CheckViolations(geofences []*Geofence) []GeofenceViolation {
	m.mu.Lock()
	defer m.mu.Unlock()

	robotIDs := make([]string, 0, len(m.robots))
	for id := range m.robots {
		robotIDs = append(robotIDs, id)
	}
	sort.Strings(robotIDs)

	var fired []GeofenceViolation

	for _, robotID := range robotIDs {
		robot := m.robots[robotID]

		for _, fence := range geofences {
			if fence == nil || !fence.IsActive || !fence.AppliesTo(robotID) {
				continue
			}

			st := m.fenceState(robotID, fence.ID)
			inside := IsRobotInGeofence(robot.current, fence)
			entered := inside && !st.inside
			exited := !inside && st.inside

			if entered {
				st.dwellStart = robot.lastUpdate
			}
			if exited {
				st.dwellStart = time.Time{}
			}

			for i := range fence.Rules {
				rule := &fence.Rules[i]
				if !rule.IsActive {
					continue
				}

				switch rule.Trigger {
				case TriggerEnter:
					if entered {
						fired = append(fired, m.newViolation(robotID, robot, fence, rule, 0, 0))
					}
				case TriggerExit:
					if exited {
						fired = append(fired, m.newViolation(robotID, robot, fence, rule, 0, 0))
					}
				case TriggerDwell:
					if inside && rule.Condition != nil && !st.dwellStart.IsZero() {
						dwell := robot.lastUpdate.Sub(st.dwellStart).Seconds()
						if dwell >= rule.Condition.MinDuration {
							fired = append(fired, m.newViolation(robotID, robot, fence, rule, 0, dwell))
						}
					}
				case TriggerSpeedLimit:
					if inside && rule.Condition != nil && robot.speed > rule.Condition.MaxSpeed {
						fired = append(fired, m.newViolation(robotID, robot, fence, rule, robot.speed, 0))
					}
				}
			}

			st.inside = inside
		}
	}

	m.violations = append(m.violations, fired...)
	return fired
}

// fenceState returns the state record for a robot/fence pair, creating it in
// the Outside state on first sight. Caller must hold the lock.
func (m *GeofenceMonitor) fenceState(robotID, geofenceID string) *fenceState {
	byFence, ok := m.fences[robotID]
	if !ok {
		byFence = make(map[string]*fenceState)
		m.fences[robotID] = byFence
	}
	st, ok := byFence[geofenceID]
	if !ok {
		st = &fenceState{}
		byFence[geofenceID] = st
	}
	return st
}

// newViolation builds a violation record for a fired rule. Caller must hold
// the lock.
func (m *GeofenceMonitor) newViolation(robotID string, robot *robotState, fence *Geofence, rule *GeofenceRule, speed, dwell float64) GeofenceViolation {
	return GeofenceViolation{
		GeofenceID:   fence.ID,
		GeofenceName: fence.Name,
		RobotID:      robotID,
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Type:         rule.Trigger,
		Coordinates:  robot.current,
		Timestamp:    robot.lastUpdate,
		Severity:     SeverityForRule(rule),
		Speed:        speed,
		DwellSeconds: dwell,
	}
}

// GetViolationHistory returns a copy of every violation fired since creation
// or the last ClearHistory. The history is unbounded unless cleared.
func (m *GeofenceMonitor) GetViolationHistory() []GeofenceViolation {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]GeofenceViolation, len(m.violations))
	copy(history, m.violations)
	return history
}

// ClearHistory discards the accumulated violation history
func (m *GeofenceMonitor) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = nil
}

// GetPositions returns a snapshot of all tracked robot positions
func (m *GeofenceMonitor) GetPositions() map[string]RobotPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]RobotPosition, len(m.robots))
	for id, st := range m.robots {
		result[id] = RobotPosition{
			RobotID:     id,
			Coordinates: st.current,
			Speed:       st.speed,
			LastUpdate:  st.lastUpdate,
		}
	}
	return result
}
