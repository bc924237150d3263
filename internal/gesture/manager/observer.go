package manager

import (
	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/arbiter"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/training"
)

// TriggerArgs lets OnGestureTriggered redirect or cancel a session before
// any recognizer runs.
type TriggerArgs struct {
	Continue bool
	Mode     gesture.Mode
	Targets  []gesture.Label
}

// Observer receives session notifications. Each method fires at most once
// per session and always after the session lock is released, so an
// observer may call back into the Manager, except from
// OnGestureTriggered which runs before the session starts.
type Observer interface {
	OnGestureTriggered(id gesture.SampleID, args *TriggerArgs)
	OnPlayerSignatureMatch(id gesture.SampleID, match bool, label gesture.Label)
	OnPlayerSignatureTrained(id gesture.SampleID, out training.Outcome)
	OnPlayerGestureAdd(id gesture.SampleID, counts map[gesture.Label]int)
	OnPlayerGestureMatch(id gesture.SampleID, label gesture.Label)
	OnDeveloperDefinedMatch(id gesture.SampleID, label gesture.Label, score gesture.Confidence)
	OnSmartIdentifyMatch(id gesture.SampleID, d arbiter.Decision)
	OnSmartIdentifyDeveloperDefinedMatch(id gesture.SampleID, d arbiter.Decision)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnGestureTriggered(gesture.SampleID, *TriggerArgs) {}
func (NopObserver) OnPlayerSignatureMatch(gesture.SampleID, bool, gesture.Label) {}
func (NopObserver) OnPlayerSignatureTrained(gesture.SampleID, training.Outcome) {}
func (NopObserver) OnPlayerGestureAdd(gesture.SampleID, map[gesture.Label]int) {}
func (NopObserver) OnPlayerGestureMatch(gesture.SampleID, gesture.Label) {}
func (NopObserver) OnDeveloperDefinedMatch(gesture.SampleID, gesture.Label, gesture.Confidence) {}
func (NopObserver) OnSmartIdentifyMatch(gesture.SampleID, arbiter.Decision) {}
func (NopObserver) OnSmartIdentifyDeveloperDefinedMatch(gesture.SampleID, arbiter.Decision) {}

var _ Observer = NopObserver{}
