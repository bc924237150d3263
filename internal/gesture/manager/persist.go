package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
)

// Load restores training progress and the smart-train exemplar collection.
// A missing progress record starts from an empty state.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		st, err := m.store.Load(ctx)
		switch {
		case errors.Is(err, progress.ErrNotFound):
			m.log.Printf("no saved training data, starting fresh")
		case err != nil:
			return fmt.Errorf("load training data: %w", err)
		default:
			m.state = st
			m.log.Printf("trained data loaded - custom:%v", st.CustomIndexed())
			m.log.Printf("history stats: user:%d common:%d fail:%d total:%d",
				sum(st.UserGestureCount), sum(st.CommonGestureCount), sum(st.FailedGestureCount), st.Total())
		}
	}

	if m.exemplars != nil {
		collection, err := m.exemplars.LoadExemplars(ctx)
		if err != nil {
			return fmt.Errorf("load exemplars: %w", err)
		}
		for l, samples := range collection {
			m.selector.Restore(l, samples)
		}
	}
	return nil
}

// Save persists the training progress state.
func (m *Manager) Save(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.mu.Lock()
	st := m.state.Clone()
	m.mu.Unlock()
	return m.store.Save(ctx, st)
}

// UpdateGestureStat runs the offline statistics pass over the exemplar
// collection for the indexed labels and, when a classifier is set, for the
// current profile. Existing statistics are kept unless force is set.
func (m *Manager) UpdateGestureStat(ctx context.Context, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	collection := m.selector.Collection()
	if err := m.arb.UpdateStats(ctx, gesture.Profile{}, collection, m.state, force); err != nil {
		return err
	}
	if m.profile.Valid() {
		return m.arb.UpdateStats(ctx, m.profile, collection, m.state, force)
	}
	return nil
}

func sum(counts map[int]int64) int64 {
	var n int64
	for _, v := range counts {
		n += v
	}
	return n
}
