package fleet

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolationLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "violations.json")

	original := []GeofenceViolation{
		{
			GeofenceID:  "plaza",
			RobotID:     "rover-1",
			RuleID:      "on-enter",
			Type:        TriggerEnter,
			Coordinates: Coordinate{Latitude: 40.7590, Longitude: -73.9850},
			Timestamp:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
			Severity:    SeverityError,
		},
		{
			GeofenceID:   "plaza",
			RobotID:      "rover-1",
			RuleID:       "loiter",
			Type:         TriggerDwell,
			DwellSeconds: 95,
			Severity:     SeverityWarning,
		},
	}

	// Missing parent directories are created.
	require.NoError(t, SaveViolationLog(original, path))

	loaded, err := LoadViolationLog(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestSaveViolationLogNilHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.json")

	require.NoError(t, SaveViolationLog(nil, path))

	loaded, err := LoadViolationLog(path)
	require.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}

func TestLoadViolationLogErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadViolationLog(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := writeTempFile(t, "violations.json", "{not json")
		_, err := LoadViolationLog(path)
		assert.ErrorContains(t, err, "unmarshal")
	})
}
