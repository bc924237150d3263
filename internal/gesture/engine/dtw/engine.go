package dtw

import (
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
)

var _ engine.NativeEngine = (*Engine)(nil)

// ErrInconsistent is reported when a training sample does not resemble the
// signature's earlier samples.
const ErrInconsistent gesture.ErrorCode = -210

const (
	trainingSteps  = 5
	weakEntryCount = 40
	templateLength = 60
)

// Options tunes the reference engine.
type Options struct {
	// Tolerance is the DTW distance at or below which two samples count as
	// the same gesture. Default 0.6.
	Tolerance float64
}

type signature struct {
	templates []trace
}

func (s *signature) progress() float32 {
	return float32(len(s.templates)) / trainingSteps
}

// Engine is an in-memory DTW recognizer. It is safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	tolerance float64
	log       monitoring.Logger

	common      map[int][]trace
	predefined  map[string]map[string][]trace // profile path -> name
	custom      map[int][]trace
	customNamed map[string][]trace
	signatures  map[int]*signature
}

// New returns an Engine seeded with the built-in common gestures.
func New(opts Options) *Engine {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 0.6
	}
	e := &Engine{
		tolerance:   opts.Tolerance,
		log:         monitoring.Tagged("dtw"),
		common:      make(map[int][]trace),
		predefined:  make(map[string]map[string][]trace),
		custom:      make(map[int][]trace),
		customNamed: make(map[string][]trace),
		signatures:  make(map[int]*signature),
	}
	for _, idx := range []int{gesture.Heart, gesture.Down, gesture.C} {
		s := gesture.Sample{Entries: Shape(idx, templateLength, 16, 3)}
		e.common[idx] = []trace{toTrace(s.Flatten())}
	}
	return e
}

// RegisterPredefined adds developer-defined templates for name under profile.
func (e *Engine) RegisterPredefined(profile gesture.Profile, name string, samples ...gesture.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byName, ok := e.predefined[profile.Path()]
	if !ok {
		byName = make(map[string][]trace)
		e.predefined[profile.Path()] = byName
	}
	for _, s := range samples {
		byName[name] = append(byName[name], toTrace(s.Flatten()))
	}
}

func split(data []float32, entryCounts []int) []trace {
	out := make([]trace, 0, len(entryCounts))
	off := 0
	for _, n := range entryCounts {
		end := off + n*gesture.EntryWidth
		if end > len(data) {
			break
		}
		out = append(out, toTrace(data[off:end]))
		off = end
	}
	return out
}

// VerifyGesture classifies against the built-in common gestures.
func (e *Engine) VerifyGesture(targets []int, data []float32, entries int, done func(int, float32, *gesture.EngineError)) {
	e.mu.Lock()
	match, d, ok := best(toTrace(data), targets, e.common)
	e.mu.Unlock()
	if !ok {
		done(0, 0, nil)
		return
	}
	e.log.Debugf("VerifyGesture match:%d distance:%.3f", match, d)
	done(match, float32(Score(d)), nil)
}

// VerifyPredefinedGesture classifies against developer-defined templates.
// Its score is twice the common score so a passing match exceeds 1.0.
func (e *Engine) VerifyPredefinedGesture(classifier, sub string, targets []string, data []float32, entries int, done func(string, float32, float32)) {
	path := gesture.Profile{Name: classifier, Sub: sub}.Path()
	e.mu.Lock()
	match, d, ok := best(toTrace(data), targets, e.predefined[path])
	e.mu.Unlock()
	if !ok {
		done("", 0, 0)
		return
	}
	score := float32(2 * Score(d))
	done(match, score, score)
}

// IdentifyCustomGesture matches user-trained indexed gestures.
func (e *Engine) IdentifyCustomGesture(targets []int, data []float32, entries int) (int, float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	match, d, ok := best(toTrace(data), targets, e.custom)
	if !ok || d > e.tolerance {
		return 0, 0
	}
	return match, float32(Score(d))
}

// IdentifyCustomGestureStr matches user-trained named gestures.
func (e *Engine) IdentifyCustomGestureStr(targets []string, data []float32, entries int) (string, float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	match, d, ok := best(toTrace(data), targets, e.customNamed)
	if !ok || d > e.tolerance {
		return "", 0
	}
	return match, float32(Score(d))
}

// IdentifySignature matches fully trained player signatures.
func (e *Engine) IdentifySignature(targets []int, data []float32, entries int, done func(int, *gesture.EngineError, int, int)) {
	e.mu.Lock()
	trained := make(map[int][]trace)
	for _, idx := range targets {
		if sig, ok := e.signatures[idx]; ok && len(sig.templates) >= trainingSteps {
			trained[idx] = sig.templates
		}
	}
	match, d, ok := best(toTrace(data), targets, trained)
	e.mu.Unlock()
	if !ok || d > e.tolerance {
		done(0, nil, 0, 0)
		return
	}
	done(match, nil, 0, 0)
}

// AddSignature adds one training sample to a player signature. Training
// completes after five consistent samples.
func (e *Engine) AddSignature(index int, data []float32, entries int, weak func(gesture.SecurityLevel) bool, done func(int, *gesture.EngineError, float32, gesture.SecurityLevel)) {
	t := toTrace(data)

	e.mu.Lock()
	sig, ok := e.signatures[index]
	if !ok || len(sig.templates) >= trainingSteps {
		sig = &signature{}
		e.signatures[index] = sig
	}
	if len(sig.templates) > 0 {
		similar := false
		for _, tpl := range sig.templates {
			if Distance(t, tpl) <= e.tolerance {
				similar = true
				break
			}
		}
		if !similar {
			progress := sig.progress()
			e.mu.Unlock()
			done(index, &gesture.EngineError{Code: ErrInconsistent, Message: "inconsistent signature"}, progress, gesture.SecurityNone)
			return
		}
	}
	sig.templates = append(sig.templates, t)
	progress := sig.progress()
	e.mu.Unlock()

	level := gesture.SecurityNormal
	if entries < weakEntryCount {
		level = gesture.SecurityPoor
		if weak != nil {
			weak(level)
		}
	} else if entries >= 2*weakEntryCount {
		level = gesture.SecurityHigh
	}
	done(index, nil, progress, level)
}

// DeleteAction removes a player signature.
func (e *Engine) DeleteAction(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.signatures[index]
	delete(e.signatures, index)
	return ok
}

// SetCustomGesture replaces the user-trained templates for index.
func (e *Engine) SetCustomGesture(index int, data []float32, entryCounts []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom[index] = split(data, entryCounts)
}

// SetCustomGestureStr replaces the user-trained templates for name.
func (e *Engine) SetCustomGestureStr(name string, data []float32, entryCounts []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customNamed[name] = split(data, entryCounts)
}

// IsTwoGestureSimilar reports whether two samples are within tolerance.
func (e *Engine) IsTwoGestureSimilar(a []float32, aEntries int, b []float32, bEntries int) bool {
	return Distance(toTrace(a), toTrace(b)) <= e.tolerance
}
