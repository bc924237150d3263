package serialmux

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	EventTypeGyro    = "gyro"
	EventTypeTrigger = "trigger"
	EventTypeStatus  = "status"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload returns the event type of one device line:
//
//	G,<dt ms>,<x>,<y>,<z>   angular velocity
//	T,1 / T,0               trigger pressed / released
//	{...}                   JSON status reply
func ClassifyPayload(payload string) string {
	switch {
	case strings.HasPrefix(payload, "G,"):
		return EventTypeGyro
	case strings.HasPrefix(payload, "T,"):
		return EventTypeTrigger
	case strings.HasPrefix(payload, "{"):
		return EventTypeStatus
	}
	return EventTypeUnknown
}

// GyroReading is one angular velocity line.
type GyroReading struct {
	DtMillis float32
	X, Y, Z  float32
}

// ParseGyro parses a "G,<dt>,<x>,<y>,<z>" line.
func ParseGyro(line string) (GyroReading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 || fields[0] != "G" {
		return GyroReading{}, fmt.Errorf("malformed gyro line %q", line)
	}
	var v [4]float32
	for i, f := range fields[1:] {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return GyroReading{}, fmt.Errorf("gyro field %d of %q: %w", i+1, line, err)
		}
		v[i] = float32(x)
	}
	return GyroReading{DtMillis: v[0], X: v[1], Y: v[2], Z: v[3]}, nil
}

// ParseTrigger parses a "T,1" or "T,0" line.
func ParseTrigger(line string) (bool, error) {
	switch strings.TrimSpace(line) {
	case "T,1":
		return true, nil
	case "T,0":
		return false, nil
	}
	return false, fmt.Errorf("malformed trigger line %q", line)
}

// DeviceStatus accumulates the key/values the device reports in its JSON
// status replies.
type DeviceStatus struct {
	mu     sync.RWMutex
	values map[string]any
}

// Apply merges one status line.
func (d *DeviceStatus) Apply(payload string) error {
	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return fmt.Errorf("failed to unmarshal status: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.values == nil {
		d.values = make(map[string]any)
	}
	for k, v := range values {
		d.values[k] = v
	}
	return nil
}

// Snapshot returns a copy of the current values.
func (d *DeviceStatus) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}
