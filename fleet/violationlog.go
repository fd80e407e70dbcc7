package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveViolationLog writes a violation history to disk as JSON
func SaveViolationLog(violations []GeofenceViolation, path string) error {
	if violations == nil {
		violations = []GeofenceViolation{}
	}
	data, err := json.MarshalIndent(violations, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal violation log: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write violation log: %w", err)
	}
	return nil
}

// LoadViolationLog reads a violation history from a JSON file on disk
func LoadViolationLog(path string) ([]GeofenceViolation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read violation log: %w", err)
	}
	var violations []GeofenceViolation
	if err := json.Unmarshal(data, &violations); err != nil {
		return nil, fmt.Errorf("unmarshal violation log: %w", err)
	}
	return violations, nil
}
