package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func circleFence(id string, rules ...GeofenceRule) *Geofence {
	return &Geofence{
		ID:          id,
		Name:        id,
		Type:        GeofenceCircle,
		Coordinates: []Coordinate{{Latitude: 40.7590, Longitude: -73.9850}},
		Radius:      50,
		Rules:       rules,
		IsActive:    true,
	}
}

func alertRule(id string, trigger TriggerType, condition *RuleCondition) GeofenceRule {
	return GeofenceRule{
		ID:        id,
		Trigger:   trigger,
		Condition: condition,
		Actions:   []GeofenceAction{{Type: ActionAlert, Priority: PriorityHigh}},
		IsActive:  true,
	}
}

var (
	insideCenter = Coordinate{Latitude: 40.7590, Longitude: -73.9850}
	farOutside   = Coordinate{Latitude: 40.7700, Longitude: -73.9850}
)

func TestEnterAndExitAreEdgeTriggered(t *testing.T) {
	m := NewGeofenceMonitor()
	fences := []*Geofence{circleFence("plaza",
		alertRule("on-enter", TriggerEnter, nil),
		alertRule("on-exit", TriggerExit, nil),
	)}

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	positions := []Coordinate{farOutside, farOutside, insideCenter, insideCenter, farOutside}

	var all []GeofenceViolation
	for i, pos := range positions {
		m.UpdatePositionAt("robot-1", pos, base.Add(time.Duration(i)*time.Minute))
		all = append(all, m.CheckViolations(fences)...)
	}

	// Two containment transitions, so exactly one enter and one exit.
	assert.Len(t, all, 2)
	assert.Equal(t, TriggerEnter, all[0].Type)
	assert.Equal(t, "on-enter", all[0].RuleID)
	assert.Equal(t, TriggerExit, all[1].Type)
	assert.Equal(t, "on-exit", all[1].RuleID)
	assert.Equal(t, "robot-1", all[0].RobotID)
	assert.Equal(t, "plaza", all[0].GeofenceID)
}

func TestEnterFiresWhenFirstSampleIsInside(t *testing.T) {
	m := NewGeofenceMonitor()
	fences := []*Geofence{circleFence("plaza", alertRule("on-enter", TriggerEnter, nil))}

	m.UpdatePosition("robot-1", insideCenter)
	violations := m.CheckViolations(fences)

	assert.Len(t, violations, 1)
	assert.Equal(t, TriggerEnter, violations[0].Type)
}

func TestDwellViolation(t *testing.T) {
	m := NewGeofenceMonitor()
	fences := []*Geofence{circleFence("plaza",
		alertRule("loiter", TriggerDwell, &RuleCondition{MinDuration: 60}),
	)}

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	m.UpdatePositionAt("robot-1", insideCenter, base)
	assert.Empty(t, m.CheckViolations(fences), "dwell starts at zero on entry")

	m.UpdatePositionAt("robot-1", insideCenter, base.Add(30*time.Second))
	assert.Empty(t, m.CheckViolations(fences), "below the threshold")

	m.UpdatePositionAt("robot-1", insideCenter, base.Add(70*time.Second))
	violations := m.CheckViolations(fences)
	assert.Len(t, violations, 1)
	assert.Equal(t, TriggerDwell, violations[0].Type)
	assert.InDelta(t, 70, violations[0].DwellSeconds, 0.001)

	// Dwell re-fires on every evaluation past the threshold.
	m.UpdatePositionAt("robot-1", insideCenter, base.Add(80*time.Second))
	assert.Len(t, m.CheckViolations(fences), 1)

	// Leaving resets the timer; a fresh entry starts over.
	m.UpdatePositionAt("robot-1", farOutside, base.Add(90*time.Second))
	assert.Empty(t, m.CheckViolations(fences))
	m.UpdatePositionAt("robot-1", insideCenter, base.Add(100*time.Second))
	assert.Empty(t, m.CheckViolations(fences))
}

func TestSpeedLimitViolation(t *testing.T) {
	m := NewGeofenceMonitor()
	fence := circleFence("plaza", alertRule("speeding", TriggerSpeedLimit, &RuleCondition{MaxSpeed: 2.0}))
	fence.Radius = 500
	fences := []*Geofence{fence}

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	m.UpdatePositionAt("robot-1", insideCenter, base)
	assert.Empty(t, m.CheckViolations(fences), "no speed on the first sample")

	// Roughly 100 m in 10 s.
	next := destinationPoint(insideCenter, 100, 90)
	m.UpdatePositionAt("robot-1", next, base.Add(10*time.Second))
	violations := m.CheckViolations(fences)
	assert.Len(t, violations, 1)
	assert.Equal(t, TriggerSpeedLimit, violations[0].Type)
	assert.InDelta(t, 10.0, violations[0].Speed, 0.1)

	// Slowing back down under the limit stops the alerts.
	slow := destinationPoint(next, 10, 90)
	m.UpdatePositionAt("robot-1", slow, base.Add(20*time.Second))
	assert.Empty(t, m.CheckViolations(fences))
}

func TestSpeedIsZeroWhenTimeDoesNotAdvance(t *testing.T) {
	m := NewGeofenceMonitor()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	m.UpdatePositionAt("robot-1", insideCenter, base)
	m.UpdatePositionAt("robot-1", farOutside, base)

	pos := m.GetPositions()["robot-1"]
	assert.Equal(t, 0.0, pos.Speed)
	assert.Equal(t, farOutside, pos.Coordinates)
}

func TestFenceRobotScoping(t *testing.T) {
	m := NewGeofenceMonitor()
	fence := circleFence("plaza", alertRule("on-enter", TriggerEnter, nil))
	fence.RobotIDs = []string{"robot-1"}
	fences := []*Geofence{fence}

	m.UpdatePosition("robot-1", insideCenter)
	m.UpdatePosition("robot-2", insideCenter)

	violations := m.CheckViolations(fences)
	assert.Len(t, violations, 1)
	assert.Equal(t, "robot-1", violations[0].RobotID)
}

func TestInactiveFencesAndRulesAreSkipped(t *testing.T) {
	inactiveFence := circleFence("off", alertRule("on-enter", TriggerEnter, nil))
	inactiveFence.IsActive = false

	inactiveRule := alertRule("dormant", TriggerEnter, nil)
	inactiveRule.IsActive = false
	activeFence := circleFence("on", inactiveRule)

	m := NewGeofenceMonitor()
	m.UpdatePosition("robot-1", insideCenter)

	assert.Empty(t, m.CheckViolations([]*Geofence{inactiveFence, activeFence}))
}

func TestViolationHistory(t *testing.T) {
	m := NewGeofenceMonitor()
	fences := []*Geofence{circleFence("plaza",
		alertRule("on-enter", TriggerEnter, nil),
		alertRule("on-exit", TriggerExit, nil),
	)}

	m.UpdatePosition("robot-1", insideCenter)
	m.CheckViolations(fences)
	m.UpdatePosition("robot-1", farOutside)
	m.CheckViolations(fences)

	history := m.GetViolationHistory()
	assert.Len(t, history, 2)

	// The returned slice is a copy.
	history[0].RobotID = "mutated"
	assert.Equal(t, "robot-1", m.GetViolationHistory()[0].RobotID)

	m.ClearHistory()
	assert.Empty(t, m.GetViolationHistory())
}

func TestMonitorSeededWithHistory(t *testing.T) {
	seed := []GeofenceViolation{{
		GeofenceID: "plaza",
		RobotID:    "robot-1",
		RuleID:     "on-enter",
		Type:       TriggerEnter,
	}}

	m := NewGeofenceMonitorWithHistory(seed)
	assert.Len(t, m.GetViolationHistory(), 1)

	fences := []*Geofence{circleFence("plaza", alertRule("on-enter", TriggerEnter, nil))}
	m.UpdatePosition("robot-2", insideCenter)
	m.CheckViolations(fences)
	assert.Len(t, m.GetViolationHistory(), 2)
}

func TestViolationSeverity(t *testing.T) {
	tests := []struct {
		name     string
		actions  []GeofenceAction
		expected Severity
	}{
		{"critical wins", []GeofenceAction{
			{Type: ActionLog, Priority: PriorityLow},
			{Type: ActionStopRobot, Priority: PriorityCritical},
		}, SeverityCritical},
		{"high maps to error", []GeofenceAction{{Type: ActionAlert, Priority: PriorityHigh}}, SeverityError},
		{"medium maps to warning", []GeofenceAction{{Type: ActionNotify, Priority: PriorityMedium}}, SeverityWarning},
		{"low maps to info", []GeofenceAction{{Type: ActionLog, Priority: PriorityLow}}, SeverityInfo},
		{"no actions defaults to info", nil, SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := GeofenceRule{ID: "r", Trigger: TriggerEnter, Actions: tt.actions}
			assert.Equal(t, tt.expected, SeverityForRule(&rule))
		})
	}
}
