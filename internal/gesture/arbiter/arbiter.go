// Package arbiter decides, per captured sample, whether to report the
// built-in recognizer's answer or the user-trained recognizer's answer.
//
// A request walks an explicit state machine:
//
//	identifyCommon -> haveCommonResult -> checkStats -> consultCustom -> report
//
// haveCommonResult skips checkStats when the common result does not pass
// its threshold, and checkStats skips consultCustom when the statistics
// favour the common recognizer. Live requests never modify statistics;
// only UpdateStats does.
package arbiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/stats"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
)

var (
	// ErrNoTargets is returned when a request has no valid target labels.
	// No recognizer is called.
	ErrNoTargets = errors.New("arbiter: no valid targets")

	// ErrNoClassifier is returned by named requests without a classifier.
	ErrNoClassifier = errors.New("arbiter: no classifier profile")
)

// Options holds the two pass thresholds. They are on different scales.
type Options struct {
	CommonPass     gesture.CommonScore // default 0.9, inclusive
	PredefinedPass gesture.Confidence  // default 1.0, exclusive
}

func (o Options) withDefaults() Options {
	if o.CommonPass == 0 {
		o.CommonPass = 0.9
	}
	if o.PredefinedPass == 0 {
		o.PredefinedPass = 1.0
	}
	return o
}

// Request is one identification.
type Request struct {
	Sample  gesture.Sample
	Targets []gesture.Label

	// Profile scopes named requests. Indexed requests ignore it.
	Profile gesture.Profile

	// Based is the label the request was captured under, if any. It is
	// excluded from the custom candidates so a label cannot confirm itself.
	Based gesture.Label
}

// Decision is the outcome of one request.
type Decision struct {
	SampleID gesture.SampleID
	Label    gesture.Label // zero when nothing matched
	Winner   gesture.Recognizer

	CommonLabel     gesture.Label
	CommonPassed    bool
	CustomLabel     gesture.Label
	ConsultedCustom bool
}

// Matched reports whether a label was resolved.
func (d Decision) Matched() bool { return !d.Label.IsZero() }

// Arbiter runs requests against a binding and a statistics store.
type Arbiter struct {
	binding engine.Binding
	stats   *stats.Store
	opts    Options
	log     monitoring.Logger
}

// New returns an Arbiter.
func New(binding engine.Binding, st *stats.Store, opts Options) *Arbiter {
	return &Arbiter{
		binding: binding,
		stats:   st,
		opts:    opts.withDefaults(),
		log:     monitoring.Tagged("arbiter"),
	}
}

// Stats returns the store the arbiter reads from.
func (a *Arbiter) Stats() *stats.Store { return a.stats }

// flavour captures what differs between the indexed and named paths.
type flavour interface {
	name() string
	profile() gesture.Profile
	classify(ctx context.Context, s gesture.Sample) (gesture.Label, bool, error)
	candidates(state *progress.State) []gesture.Label
	// counted reports whether decisions feed the indexed progress counters.
	counted() bool
}

type step int

const (
	stepIdentifyCommon step = iota
	stepHaveCommonResult
	stepCheckStats
	stepConsultCustom
	stepReport
	stepDone
)

// run drives a request through the state machine.
func (a *Arbiter) run(ctx context.Context, f flavour, req Request, state *progress.State) (Decision, error) {
	log := a.log.With(f.name())
	d := Decision{SampleID: req.Sample.ID}

	for st := stepIdentifyCommon; st != stepDone; {
		switch st {
		case stepIdentifyCommon:
			label, passed, err := f.classify(ctx, req.Sample)
			if err != nil {
				if ctx.Err() != nil {
					return d, ctx.Err()
				}
				log.Printf("common identify ID:%d failed: %v", req.Sample.ID, err)
			}
			d.CommonLabel, d.CommonPassed = label, passed
			st = stepHaveCommonResult

		case stepHaveCommonResult:
			if !d.CommonPassed {
				log.Debugf("common identify failed for ID:%d, try custom", req.Sample.ID)
				st = stepConsultCustom
				break
			}
			st = stepCheckStats

		case stepCheckStats:
			if a.stats.FavorsCommon(f.profile(), d.CommonLabel) {
				d.Label, d.Winner = d.CommonLabel, gesture.RecognizerCommon
				st = stepReport
				break
			}
			log.Debugf("stats favour custom for %s", d.CommonLabel)
			st = stepConsultCustom

		case stepConsultCustom:
			if err := a.consultCustom(ctx, f, req, state, &d); err != nil {
				return d, err
			}
			st = stepReport

		case stepReport:
			if f.counted() {
				a.count(state, req, d)
			}
			log.Debugf("ID:%d -> %s (%s)", req.Sample.ID, d.Label, d.Winner)
			st = stepDone
		}
	}
	return d, nil
}

func (a *Arbiter) consultCustom(ctx context.Context, f flavour, req Request, state *progress.State, d *Decision) error {
	fallback := func() {
		if d.CommonPassed {
			d.Label, d.Winner = d.CommonLabel, gesture.RecognizerCommon
		} else {
			d.Label = gesture.Label{}
		}
	}

	var candidates []gesture.Label
	for _, l := range f.candidates(state) {
		if l != req.Based {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		fallback()
		return nil
	}

	d.ConsultedCustom = true
	res, err := a.binding.ClassifyCustom(ctx, req.Sample, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Printf("custom identify ID:%d failed: %v", req.Sample.ID, err)
	}
	if err != nil || !res.Found() || !gesture.Contains(candidates, res.Label) {
		fallback()
		return nil
	}
	d.CustomLabel = res.Label

	switch {
	case !d.CommonPassed:
		d.Label, d.Winner = res.Label, gesture.RecognizerCustom
	case res.Label == d.CommonLabel:
		d.Label, d.Winner = res.Label, gesture.RecognizerCommon
	default:
		// a label the custom recognizer does worse on keeps the common answer
		if ls, ok := a.stats.Lookup(f.profile(), res.Label); ok && ls.Errors.Common < ls.Errors.User {
			d.Label, d.Winner = d.CommonLabel, gesture.RecognizerCommon
		} else {
			d.Label, d.Winner = res.Label, gesture.RecognizerCustom
		}
	}
	return nil
}

// count updates the indexed progress counters.
func (a *Arbiter) count(state *progress.State, req Request, d Decision) {
	if state == nil {
		return
	}
	if !d.Matched() {
		state.IncFailedGestureCount(req.Based.Index())
		return
	}
	if !d.Label.IsIndexed() {
		return
	}
	if d.Winner == gesture.RecognizerCustom {
		state.IncUserGestureCount(d.Label.Index())
	} else {
		state.IncCommonGestureCount(d.Label.Index())
	}
}

type indexedFlavour struct {
	a       *Arbiter
	targets []gesture.Label
}

func (f indexedFlavour) name() string             { return "SmartIdentify" }
func (f indexedFlavour) profile() gesture.Profile { return gesture.Profile{} }
func (f indexedFlavour) counted() bool            { return true }

func (f indexedFlavour) classify(ctx context.Context, s gesture.Sample) (gesture.Label, bool, error) {
	res, err := f.a.binding.ClassifyCommon(ctx, s, f.targets)
	if err != nil || res.Label.IsZero() {
		return gesture.Label{}, false, err
	}
	return res.Label, res.Label.IsCommon() && res.Score.Passes(f.a.opts.CommonPass), nil
}

func (f indexedFlavour) candidates(state *progress.State) []gesture.Label {
	if state == nil {
		return nil
	}
	return state.CustomIndexed()
}

// IdentifyIndexed arbitrates between the common-gesture recognizer and
// the custom recognizer over indexed labels. Only built-in common targets
// are considered valid.
func (a *Arbiter) IdentifyIndexed(ctx context.Context, req Request, state *progress.State) (Decision, error) {
	var valid []gesture.Label
	for _, l := range req.Targets {
		if l.IsCommon() {
			valid = append(valid, l)
		}
	}
	if len(valid) == 0 {
		a.log.Printf("[SmartIdentify] target index doesn't contain valid targets: %v", req.Targets)
		return Decision{SampleID: req.Sample.ID}, ErrNoTargets
	}
	return a.run(ctx, indexedFlavour{a: a, targets: valid}, req, state)
}

type namedFlavour struct {
	a       *Arbiter
	p       gesture.Profile
	targets []gesture.Label
}

func (f namedFlavour) name() string             { return "SmartIdentifyDeveloperDefined" }
func (f namedFlavour) profile() gesture.Profile { return f.p }
func (f namedFlavour) counted() bool            { return false }

func (f namedFlavour) classify(ctx context.Context, s gesture.Sample) (gesture.Label, bool, error) {
	res, err := f.a.binding.ClassifyPredefined(ctx, s, f.p, f.targets)
	if err != nil || res.Label.IsZero() {
		return gesture.Label{}, false, err
	}
	return res.Label, res.Score.Passes(f.a.opts.PredefinedPass), nil
}

func (f namedFlavour) candidates(state *progress.State) []gesture.Label {
	if state == nil {
		return nil
	}
	var out []gesture.Label
	for _, l := range f.targets {
		if state.CustomEnabled(l) {
			out = append(out, l)
		}
	}
	return out
}

// IdentifyNamed arbitrates between the developer-defined recognizer and
// the custom recognizer over the named targets of req.Profile.
func (a *Arbiter) IdentifyNamed(ctx context.Context, req Request, state *progress.State) (Decision, error) {
	var valid []gesture.Label
	for _, l := range req.Targets {
		if l.IsNamed() {
			valid = append(valid, gesture.Named(l.Name(), req.Profile))
		}
	}
	if len(valid) == 0 {
		a.log.Printf("[SmartIdentifyDeveloperDefined] identify without target")
		return Decision{SampleID: req.Sample.ID}, ErrNoTargets
	}
	if !req.Profile.Valid() {
		a.log.Printf("[SmartIdentifyDeveloperDefined] identify without classifier")
		return Decision{SampleID: req.Sample.ID}, ErrNoClassifier
	}
	return a.run(ctx, namedFlavour{a: a, p: req.Profile, targets: valid}, req, state)
}

// String renders a decision for logs.
func (d Decision) String() string {
	return fmt.Sprintf("ID:%d label:%s winner:%s common:%s(pass=%t) custom:%s consulted:%t",
		d.SampleID, d.Label, d.Winner, d.CommonLabel, d.CommonPassed, d.CustomLabel, d.ConsultedCustom)
}
