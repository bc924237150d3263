package manager

import (
	"context"
	"fmt"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// smartTrainOffer scores s against the first indexed target and offers it
// to the selector.
func (m *Manager) smartTrainOffer(ctx context.Context, targets []gesture.Label, s gesture.Sample) error {
	if len(targets) == 0 {
		return nil
	}
	target := targets[0]
	res, err := m.binding.ClassifyCommon(ctx, s, []gesture.Label{target})
	if err != nil {
		return err
	}
	if res.Label != target {
		m.log.Debugf("[SmartTrain] ID:%d did not match %s", s.ID, target)
		return nil
	}
	m.selector.Offer(target, s, float64(res.Score))
	return nil
}

// smartTrainDeveloperDefinedOffer scores s against the first named target
// under the current profile and offers it to the selector.
func (m *Manager) smartTrainDeveloperDefinedOffer(ctx context.Context, s gesture.Sample) error {
	named := m.namedTargetsLocked()
	if len(named) == 0 || !m.profile.Valid() {
		return nil
	}
	target := named[0]
	res, err := m.binding.ClassifyPredefined(ctx, s, m.profile, []gesture.Label{target})
	if err != nil {
		return err
	}
	if res.Label != target {
		m.log.Debugf("[SmartTrainDeveloperDefined] ID:%d did not match %s", s.ID, target)
		return nil
	}
	m.selector.Offer(target, s, float64(res.Score))
	return nil
}

// smartTrainLocked closes the open smart-train session for label. The
// drained samples are fed to the custom recognizer in ascending score
// order; a sample joins the training set only when it is similar to one
// already accepted. Indexed labels outside the built-in common set are
// stored for the statistics pass but not trained.
func (m *Manager) smartTrainLocked(ctx context.Context, label gesture.Label) error {
	samples, ok := m.selector.Drain(label)
	if !ok {
		return nil
	}

	if m.exemplars != nil {
		stored := m.selector.Collection()[label]
		if err := m.exemplars.SaveExemplars(ctx, label, stored); err != nil {
			m.log.Printf("[SmartTrain] persist exemplars for %s: %v", label, err)
		}
	}

	if label.IsIndexed() && !label.IsCommon() {
		m.log.Printf("[SmartTrain] %s is not a built-in common gesture, training skipped", label)
		return nil
	}

	accepted := make([]gesture.Sample, 0, len(samples))
	for _, s := range samples {
		if len(accepted) == 0 {
			accepted = append(accepted, s)
			continue
		}
		for _, prev := range accepted {
			similar, err := m.binding.IsSimilar(ctx, prev, s)
			if err != nil {
				return fmt.Errorf("compare ID:%d with ID:%d: %w", s.ID, prev.ID, err)
			}
			if similar {
				accepted = append(accepted, s)
				break
			}
		}
	}

	m.state.EnableCustom(label)
	if err := m.binding.SetCustomGesture(ctx, label, accepted); err != nil {
		return fmt.Errorf("set custom gesture %s: %w", label, err)
	}
	m.log.Printf("[SmartTrain] %s trained with %d of %d samples", label, len(accepted), len(samples))
	return nil
}
