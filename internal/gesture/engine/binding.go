// Package engine defines the recognizer binding the arbitration layer talks
// to, and an adapter for callback-style native engines.
package engine

import (
	"context"
	"errors"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// ErrEngineTimeout is returned when a recognizer call does not complete
// within the binding's bounded wait. The accompanying result is the zero
// value, which callers treat as "no match".
var ErrEngineTimeout = errors.New("engine: recognizer call timed out")

// ErrNoCandidates is returned by classify calls given an empty label set.
var ErrNoCandidates = errors.New("engine: no candidate labels")

// CommonResult is the indexed common-gesture recognizer's answer.
type CommonResult struct {
	Label gesture.Label
	Score gesture.CommonScore
}

// PredefinedResult is the developer-defined recognizer's answer. Score is
// the pass/fail scale; Conf is the raw confidence accumulated by the
// statistics pass.
type PredefinedResult struct {
	Label gesture.Label
	Score gesture.Confidence
	Conf  float64
}

// CustomResult is the user-trained recognizer's answer. A zero Label means
// nothing matched.
type CustomResult struct {
	Label      gesture.Label
	Confidence float64
}

// Found reports whether the custom recognizer matched a label.
func (r CustomResult) Found() bool { return !r.Label.IsZero() }

// SignatureResult is the player-signature identification answer.
type SignatureResult struct {
	Match          bool
	Label          gesture.Label
	Err            *gesture.EngineError
	AttemptsLeft   int
	SecondsToReset int
}

// TrainResult is one step of incremental signature training.
type TrainResult struct {
	Label    gesture.Label
	Progress float64
	Err      *gesture.EngineError
	Security gesture.SecurityLevel
}

// WeakSecurityFunc is invoked by the engine when a signature being trained
// rates too weak. Returning true tells the engine to flag it.
type WeakSecurityFunc func(level gesture.SecurityLevel) bool

// Binding is the single interface through which the arbitration layer
// reaches a recognizer. Implementations must be safe to call from one
// session at a time; they need not be re-entrant.
type Binding interface {
	// ClassifyCommon runs the built-in common-gesture recognizer.
	ClassifyCommon(ctx context.Context, s gesture.Sample, candidates []gesture.Label) (CommonResult, error)

	// ClassifyPredefined runs the developer-defined recognizer for profile.
	ClassifyPredefined(ctx context.Context, s gesture.Sample, profile gesture.Profile, candidates []gesture.Label) (PredefinedResult, error)

	// ClassifyCustom runs the user-trained recognizer over candidates,
	// which must be all indexed or all named.
	ClassifyCustom(ctx context.Context, s gesture.Sample, candidates []gesture.Label) (CustomResult, error)

	IdentifySignature(ctx context.Context, s gesture.Sample, candidates []gesture.Label) (SignatureResult, error)
	TrainSignature(ctx context.Context, label gesture.Label, s gesture.Sample, weak WeakSecurityFunc) (TrainResult, error)
	DeleteLabel(ctx context.Context, label gesture.Label) (bool, error)

	// SetCustomGesture replaces the user-trained exemplars for label.
	SetCustomGesture(ctx context.Context, label gesture.Label, samples []gesture.Sample) error

	// IsSimilar reports whether two samples look like the same gesture.
	IsSimilar(ctx context.Context, a, b gesture.Sample) (bool, error)
}
