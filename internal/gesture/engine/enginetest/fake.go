// Package enginetest provides a programmable engine.Binding for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
)

// Operation names recorded by Fake.
const (
	OpClassifyCommon     = "ClassifyCommon"
	OpClassifyPredefined = "ClassifyPredefined"
	OpClassifyCustom     = "ClassifyCustom"
	OpIdentifySignature  = "IdentifySignature"
	OpTrainSignature     = "TrainSignature"
	OpDeleteLabel        = "DeleteLabel"
	OpSetCustomGesture   = "SetCustomGesture"
	OpIsSimilar          = "IsSimilar"
)

// SetCall records one SetCustomGesture invocation.
type SetCall struct {
	Label   gesture.Label
	Samples []gesture.Sample
}

// Fake is an engine.Binding whose answers come from the *Fn fields. Unset
// functions return the zero result, except IsSimilar which defaults to
// true. Every call is counted.
type Fake struct {
	CommonFn     func(s gesture.Sample, candidates []gesture.Label) engine.CommonResult
	PredefinedFn func(s gesture.Sample, p gesture.Profile, candidates []gesture.Label) engine.PredefinedResult
	CustomFn     func(s gesture.Sample, candidates []gesture.Label) engine.CustomResult
	SignatureFn  func(s gesture.Sample, candidates []gesture.Label) engine.SignatureResult
	TrainFn      func(l gesture.Label, s gesture.Sample, weak engine.WeakSecurityFunc) engine.TrainResult
	SimilarFn    func(a, b gesture.Sample) bool

	// Err, when set, is returned by every call.
	Err error

	mu               sync.Mutex
	calls            map[string]int
	customCandidates [][]gesture.Label
	deleted          []gesture.Label
	sets             []SetCall
}

var _ engine.Binding = (*Fake)(nil)

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// CustomCandidates returns the candidate sets passed to ClassifyCustom.
func (f *Fake) CustomCandidates() [][]gesture.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]gesture.Label(nil), f.customCandidates...)
}

// Deleted returns the labels passed to DeleteLabel.
func (f *Fake) Deleted() []gesture.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gesture.Label(nil), f.deleted...)
}

// Sets returns every SetCustomGesture call.
func (f *Fake) Sets() []SetCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SetCall(nil), f.sets...)
}

func (f *Fake) ClassifyCommon(_ context.Context, s gesture.Sample, candidates []gesture.Label) (engine.CommonResult, error) {
	f.record(OpClassifyCommon)
	if f.Err != nil {
		return engine.CommonResult{}, f.Err
	}
	if f.CommonFn == nil {
		return engine.CommonResult{}, nil
	}
	return f.CommonFn(s, candidates), nil
}

func (f *Fake) ClassifyPredefined(_ context.Context, s gesture.Sample, p gesture.Profile, candidates []gesture.Label) (engine.PredefinedResult, error) {
	f.record(OpClassifyPredefined)
	if f.Err != nil {
		return engine.PredefinedResult{}, f.Err
	}
	if f.PredefinedFn == nil {
		return engine.PredefinedResult{}, nil
	}
	return f.PredefinedFn(s, p, candidates), nil
}

func (f *Fake) ClassifyCustom(_ context.Context, s gesture.Sample, candidates []gesture.Label) (engine.CustomResult, error) {
	f.record(OpClassifyCustom)
	f.mu.Lock()
	f.customCandidates = append(f.customCandidates, append([]gesture.Label(nil), candidates...))
	f.mu.Unlock()
	if f.Err != nil {
		return engine.CustomResult{}, f.Err
	}
	if f.CustomFn == nil {
		return engine.CustomResult{}, nil
	}
	return f.CustomFn(s, candidates), nil
}

func (f *Fake) IdentifySignature(_ context.Context, s gesture.Sample, candidates []gesture.Label) (engine.SignatureResult, error) {
	f.record(OpIdentifySignature)
	if f.Err != nil {
		return engine.SignatureResult{}, f.Err
	}
	if f.SignatureFn == nil {
		return engine.SignatureResult{}, nil
	}
	return f.SignatureFn(s, candidates), nil
}

func (f *Fake) TrainSignature(_ context.Context, l gesture.Label, s gesture.Sample, weak engine.WeakSecurityFunc) (engine.TrainResult, error) {
	f.record(OpTrainSignature)
	if f.Err != nil {
		return engine.TrainResult{}, f.Err
	}
	if f.TrainFn == nil {
		return engine.TrainResult{Label: l}, nil
	}
	return f.TrainFn(l, s, weak), nil
}

func (f *Fake) DeleteLabel(_ context.Context, l gesture.Label) (bool, error) {
	f.record(OpDeleteLabel)
	f.mu.Lock()
	f.deleted = append(f.deleted, l)
	f.mu.Unlock()
	return f.Err == nil, f.Err
}

func (f *Fake) SetCustomGesture(_ context.Context, l gesture.Label, samples []gesture.Sample) error {
	f.record(OpSetCustomGesture)
	f.mu.Lock()
	f.sets = append(f.sets, SetCall{Label: l, Samples: append([]gesture.Sample(nil), samples...)})
	f.mu.Unlock()
	return f.Err
}

func (f *Fake) IsSimilar(_ context.Context, a, b gesture.Sample) (bool, error) {
	f.record(OpIsSimilar)
	if f.Err != nil {
		return false, f.Err
	}
	if f.SimilarFn == nil {
		return true, nil
	}
	return f.SimilarFn(a, b), nil
}
