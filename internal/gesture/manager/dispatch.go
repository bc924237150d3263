package manager

import (
	"context"
	"errors"
	"slices"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/arbiter"
)

// notify is a deferred observer call, delivered once the session lock is
// released.
type notify func(Observer)

// HandleSample caches a captured sample and runs one session for it with
// the current mode and targets. A zero sample id is assigned from the
// manager's clock. The id is returned so callers can Replay it.
func (m *Manager) HandleSample(ctx context.Context, s gesture.Sample) (gesture.SampleID, error) {
	if s.ID == 0 {
		s.ID = m.ids.Next()
	}
	if s.Empty() {
		m.log.Printf("sample ID:%d has no entries", s.ID)
		return s.ID, ErrEmptySample
	}
	m.cache.Put(s)

	m.mu.Lock()
	args := TriggerArgs{Continue: true, Mode: m.mode, Targets: slices.Clone(m.targets)}
	m.mu.Unlock()

	m.observer.OnGestureTriggered(s.ID, &args)
	if !args.Continue {
		m.log.Debugf("ID:%d cancelled by trigger observer", s.ID)
		return s.ID, nil
	}
	return s.ID, m.perform(ctx, args.Mode, args.Targets, s)
}

// Replay re-runs a cached sample with an explicit mode and targets.
func (m *Manager) Replay(ctx context.Context, mode gesture.Mode, targets []gesture.Label, id gesture.SampleID) error {
	s, ok := m.cache.Get(id)
	if !ok {
		m.log.Printf("sample ID:%d is not available", id)
		return ErrSampleUnavailable
	}
	return m.perform(ctx, mode, targets, s)
}

func (m *Manager) perform(ctx context.Context, mode gesture.Mode, targets []gesture.Label, s gesture.Sample) error {
	m.mu.Lock()
	events, err := m.performLocked(ctx, mode, targets, s)
	m.mu.Unlock()

	for _, n := range events {
		n(m.observer)
	}
	return err
}

// performLocked runs every recognizer the mode selects, in a fixed order.
// Failures of one step are logged and joined; later steps still run.
func (m *Manager) performLocked(ctx context.Context, mode gesture.Mode, targets []gesture.Label, s gesture.Sample) ([]notify, error) {
	var (
		events []notify
		errs   []error
	)
	id := s.ID
	step := func(n notify, err error) {
		if n != nil {
			events = append(events, n)
		}
		if err != nil {
			if ctx.Err() == nil {
				m.log.Printf("ID:%d: %v", id, err)
			}
			errs = append(errs, err)
		}
	}

	if mode.Has(gesture.ModeIdentifyPlayerSignature) {
		step(m.identifySignature(ctx, targets, s))
	}
	if mode.Has(gesture.ModeTrainPlayerSignature) {
		step(m.trainSignature(ctx, targets, s))
	}
	if mode.Has(gesture.ModeSmartTrain) {
		step(nil, m.smartTrainOffer(ctx, targets, s))
	}
	if mode.Has(gesture.ModeSmartIdentify) {
		step(m.smartIdentify(ctx, targets, s))
	}
	if mode.Has(gesture.ModeAddPlayerGesture) {
		step(m.addPlayerGesture(targets, s), nil)
	}
	if mode.Has(gesture.ModeIdentifyPlayerGesture) {
		step(m.identifyPlayerGesture(ctx, targets, s))
	}
	if mode.Has(gesture.ModeDeveloperDefined) {
		step(m.developerDefined(ctx, s))
	}
	if mode.Has(gesture.ModeSmartIdentifyDeveloperDefined) {
		step(m.smartIdentifyDeveloperDefined(ctx, s))
	}
	if mode.Has(gesture.ModeSmartTrainDeveloperDefined) {
		step(nil, m.smartTrainDeveloperDefinedOffer(ctx, s))
	}
	return events, errors.Join(errs...)
}

func (m *Manager) identifySignature(ctx context.Context, targets []gesture.Label, s gesture.Sample) (notify, error) {
	res, err := m.binding.IdentifySignature(ctx, s, targets)
	if err != nil {
		return nil, err
	}
	match := res.Err == nil && res.Match
	if res.Err != nil {
		m.log.Debugf("[PlayerSignature] identify fail: %v", res.Err)
	}
	return func(o Observer) { o.OnPlayerSignatureMatch(s.ID, match, res.Label) }, nil
}

func (m *Manager) trainSignature(ctx context.Context, targets []gesture.Label, s gesture.Sample) (notify, error) {
	if len(targets) == 0 {
		m.log.Printf("[TrainPlayerSignature] no target to train")
		return nil, nil
	}
	out, err := m.tracker.Train(ctx, targets[0], s)
	if err != nil {
		return nil, err
	}
	if out.Label.IsIndexed() {
		m.state.TrainProgress[out.Label.Index()] = out.Progress
	}
	return func(o Observer) { o.OnPlayerSignatureTrained(s.ID, out) }, nil
}

func (m *Manager) smartIdentify(ctx context.Context, targets []gesture.Label, s gesture.Sample) (notify, error) {
	d, err := m.arb.IdentifyIndexed(ctx, arbiter.Request{Sample: s, Targets: targets}, m.state)
	if errors.Is(err, arbiter.ErrNoTargets) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return func(o Observer) { o.OnSmartIdentifyMatch(s.ID, d) }, nil
}

func (m *Manager) smartIdentifyDeveloperDefined(ctx context.Context, s gesture.Sample) (notify, error) {
	d, err := m.arb.IdentifyNamed(ctx, arbiter.Request{
		Sample:  s,
		Targets: m.namedTargetsLocked(),
		Profile: m.profile,
	}, m.state)
	if errors.Is(err, arbiter.ErrNoTargets) || errors.Is(err, arbiter.ErrNoClassifier) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return func(o Observer) { o.OnSmartIdentifyDeveloperDefinedMatch(s.ID, d) }, nil
}

func (m *Manager) identifyPlayerGesture(ctx context.Context, targets []gesture.Label, s gesture.Sample) (notify, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	res, err := m.binding.ClassifyCustom(ctx, s, targets)
	if err != nil {
		return nil, err
	}
	return func(o Observer) { o.OnPlayerGestureMatch(s.ID, res.Label) }, nil
}

func (m *Manager) developerDefined(ctx context.Context, s gesture.Sample) (notify, error) {
	if !m.profile.Valid() {
		m.log.Printf("[DeveloperDefined] empty classifier, no identification will be performed")
		return nil, nil
	}
	named := m.namedTargetsLocked()
	if len(named) == 0 {
		return nil, nil
	}
	res, err := m.binding.ClassifyPredefined(ctx, s, m.profile, named)
	if err != nil {
		return nil, err
	}
	m.log.Debugf("[DeveloperDefined] match: %s, score: %.3f, conf: %.3f", res.Label, res.Score, res.Conf)
	return func(o Observer) { o.OnDeveloperDefinedMatch(s.ID, res.Label, res.Score) }, nil
}

func (m *Manager) namedTargetsLocked() []gesture.Label {
	out := make([]gesture.Label, 0, len(m.ddTargets))
	for _, n := range m.ddTargets {
		if l := gesture.Named(n, m.profile); !l.IsZero() {
			out = append(out, l)
		}
	}
	return out
}
