package manager

import (
	"context"
	"fmt"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// addPlayerGesture appends s to the pending exemplars of every target.
func (m *Manager) addPlayerGesture(targets []gesture.Label, s gesture.Sample) notify {
	counts := make(map[gesture.Label]int, len(targets))
	for _, l := range targets {
		m.playerGestures[l] = append(m.playerGestures[l], s)
		counts[l] = len(m.playerGestures[l])
	}
	return func(o Observer) { o.OnPlayerGestureAdd(s.ID, counts) }
}

// PendingPlayerGestures returns how many exemplars are waiting per label.
func (m *Manager) PendingPlayerGestures() map[gesture.Label]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[gesture.Label]int, len(m.playerGestures))
	for l, samples := range m.playerGestures {
		if len(samples) > 0 {
			out[l] = len(samples)
		}
	}
	return out
}

// SetPlayerGesture hands the pending exemplars of each target to the custom
// recognizer and returns how many were set per label. Targets without
// pending exemplars are skipped.
func (m *Manager) SetPlayerGesture(ctx context.Context, targets []gesture.Label, clearOnSet bool) (map[gesture.Label]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[gesture.Label]int)
	for _, l := range targets {
		samples := m.playerGestures[l]
		if len(samples) == 0 {
			continue
		}
		if err := m.binding.SetCustomGesture(ctx, l, samples); err != nil {
			return result, fmt.Errorf("set custom gesture %s: %w", l, err)
		}
		result[l] = len(samples)
		if clearOnSet {
			delete(m.playerGestures, l)
		}
	}
	m.log.Debugf("[SetPlayerGesture] %v", result)
	return result, nil
}
