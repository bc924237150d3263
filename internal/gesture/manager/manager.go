// Package manager is the gesture session manager. It owns the sample
// cache, the current mode and targets, the smart-train selector and the
// persisted training progress, and dispatches each captured sample to the
// recognizers the mode selects.
package manager

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/config"
	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/arbiter"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/samplecache"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/smarttrain"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/stats"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/training"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
	"github.com/banshee-data/gesture.arbiter/internal/timeutil"
)

var (
	// ErrSampleUnavailable is returned by Replay when the sample has been
	// evicted from the cache or was never captured.
	ErrSampleUnavailable = errors.New("manager: sample unavailable")

	// ErrEmptySample is returned by HandleSample for a sample without
	// entries.
	ErrEmptySample = errors.New("manager: empty sample")

	errNoBinding = errors.New("manager: binding is required")
)

// ExemplarStore persists the smart-train exemplar collection.
type ExemplarStore interface {
	SaveExemplars(ctx context.Context, label gesture.Label, samples []gesture.Sample) error
	LoadExemplars(ctx context.Context) (map[gesture.Label][]gesture.Sample, error)
}

// Options configures a Manager. Binding is required.
type Options struct {
	Binding   engine.Binding
	Config    *config.ArbiterConfig
	Store     progress.Store
	Exemplars ExemplarStore
	Observer  Observer
	Clock     timeutil.Clock
}

// Manager replaces the process-wide gesture singleton with an explicitly
// constructed session owner. One session runs at a time.
type Manager struct {
	binding   engine.Binding
	cfg       *config.ArbiterConfig
	arb       *arbiter.Arbiter
	tracker   *training.Tracker
	cache     *samplecache.Cache
	selector  *smarttrain.Selector
	ids       *gesture.IDSource
	store     progress.Store
	exemplars ExemplarStore
	observer  Observer
	log       monitoring.Logger

	mu             sync.Mutex
	state          *progress.State
	mode           gesture.Mode
	targets        []gesture.Label
	ddTargets      []string
	profile        gesture.Profile
	playerGestures map[gesture.Label][]gesture.Sample
}

// New builds a Manager from opts.
func New(opts Options) (*Manager, error) {
	if opts.Binding == nil {
		return nil, errNoBinding
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyArbiterConfig()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	arb := arbiter.New(opts.Binding, stats.New(), arbiter.Options{
		CommonPass:     gesture.CommonScore(cfg.GetCommonPassThreshold()),
		PredefinedPass: gesture.Confidence(cfg.GetPredefinedPassScore()),
	})
	return &Manager{
		binding: opts.Binding,
		cfg:     cfg,
		arb:     arb,
		tracker: training.New(opts.Binding, training.Options{
			MistouchEntries: cfg.GetMistouchEntries(),
			SizeRatio:       cfg.GetTrainSizeRatio(),
			FailResetCount:  cfg.GetTrainFailResetCount(),
			WeakThreshold:   cfg.GetSecurityWeakThreshold(),
		}),
		cache: samplecache.New(cfg.GetCacheSize()),
		selector: smarttrain.New(smarttrain.Options{
			FirstThreshold: cfg.GetCommonPassThreshold(),
			PassThreshold:  cfg.GetSmartTrainPassThreshold(),
			MinSamples:     cfg.GetMinSmartTrainSamples(),
		}),
		ids:            gesture.NewIDSource(opts.Clock),
		store:          opts.Store,
		exemplars:      opts.Exemplars,
		observer:       opts.Observer,
		log:            monitoring.Tagged("manager"),
		state:          progress.NewState(),
		playerGestures: make(map[gesture.Label][]gesture.Sample),
	}, nil
}

// Mode returns the current mode.
func (m *Manager) Mode() gesture.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Targets returns a copy of the indexed targets.
func (m *Manager) Targets() []gesture.Label {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.targets)
}

// SetMode selects what happens to the next sample. Leaving a smart-train
// mode closes the open session and trains the custom recognizer with it.
func (m *Manager) SetMode(ctx context.Context, mode gesture.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode == mode {
		m.log.Debugf("[SetMode] new mode (%s) equals the existing mode", mode)
		return nil
	}
	m.log.Debugf("[SetMode] new mode (%s)", mode)

	var err error
	if m.mode.Has(gesture.ModeSmartTrainDeveloperDefined) && !mode.Has(gesture.ModeSmartTrainDeveloperDefined) && len(m.ddTargets) > 0 {
		err = m.smartTrainLocked(ctx, gesture.Named(m.ddTargets[0], m.profile))
	}
	if m.mode.Has(gesture.ModeSmartTrain) && !mode.Has(gesture.ModeSmartTrain) && len(m.targets) > 0 {
		err = errors.Join(err, m.smartTrainLocked(ctx, m.targets[0]))
	}

	m.mode = mode
	m.tracker.ResetFailures()
	return err
}

// SetTarget replaces the indexed targets. In smart-train mode the session
// for the previous first target is closed first.
func (m *Manager) SetTarget(ctx context.Context, targets []gesture.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.Equal(m.targets, targets) {
		m.log.Debugf("[SetTarget] new targets equal the existing targets")
		return nil
	}

	var err error
	if m.mode.Has(gesture.ModeSmartTrain) && len(m.targets) > 0 {
		err = m.smartTrainLocked(ctx, m.targets[0])
	}
	m.targets = slices.Clone(targets)
	m.log.Debugf("[SetTarget] targets: %v", m.targets)
	m.tracker.ResetFailures()
	return err
}

// SetDeveloperDefinedTarget replaces the named targets. In smart-train
// developer-defined mode the session for the previous first target is
// closed first.
func (m *Manager) SetDeveloperDefinedTarget(ctx context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var previous string
	if len(m.ddTargets) > 0 {
		previous = m.ddTargets[0]
	}
	m.ddTargets = slices.Clone(names)
	m.log.Debugf("[SetDeveloperDefinedTarget] targets: %v", m.ddTargets)

	if m.mode.Has(gesture.ModeSmartTrainDeveloperDefined) && previous != "" {
		return m.smartTrainLocked(ctx, gesture.Named(previous, m.profile))
	}
	return nil
}

// SetClassifier selects the developer-defined classifier profile. In
// smart-train developer-defined mode the open session belongs to the old
// profile, so it is closed before switching.
func (m *Manager) SetClassifier(ctx context.Context, name, sub string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := gesture.Profile{Name: name, Sub: sub}
	if next == m.profile {
		return nil
	}
	var err error
	if m.mode.Has(gesture.ModeSmartTrainDeveloperDefined) && len(m.ddTargets) > 0 && m.profile.Valid() {
		err = m.smartTrainLocked(ctx, gesture.Named(m.ddTargets[0], m.profile))
	}
	m.profile = next
	m.log.Debugf("[SetClassifier] profile: %s", next.Path())
	return err
}

// Profile returns the current classifier profile.
func (m *Manager) Profile() gesture.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// ResetSmartTrain forgets which labels use the custom recognizer.
func (m *Manager) ResetSmartTrain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ResetCustom()
}

// DeletePlayerRecord deletes a trained player gesture or signature.
func (m *Manager) DeletePlayerRecord(ctx context.Context, label gesture.Label) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binding.DeleteLabel(ctx, label)
}

// IsLowSecureSignature reports whether the signature being trained has
// been rated too weak too often.
func (m *Manager) IsLowSecureSignature() bool {
	return m.tracker.IsLowSecureSignature()
}

// Cache exposes the sample cache for read-only consumers.
func (m *Manager) Cache() *samplecache.Cache { return m.cache }

// Stats exposes the gesture statistics store.
func (m *Manager) Stats() *stats.Store { return m.arb.Stats() }

// Selector exposes the smart-train selector.
func (m *Manager) Selector() *smarttrain.Selector { return m.selector }

// Progress returns a copy of the training progress state.
func (m *Manager) Progress() *progress.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// NextID allocates a sample id from the manager's clock.
func (m *Manager) NextID() gesture.SampleID { return m.ids.Next() }
