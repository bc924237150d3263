// Package training wraps incremental signature training with the
// consecutive-failure bookkeeping that decides when a partially trained
// label is thrown away and restarted.
package training

import (
	"context"
	"math"
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
)

const (
	firstStepProgress = 0.2
	halfwayProgress   = 0.5
	progressTolerance = 1e-3
)

// Options tunes the tracker. Zero fields take the defaults noted.
type Options struct {
	MistouchEntries int     // 30; samples this short are mistouches
	SizeRatio       float64 // 0.65; minimum size relative to the first sample
	FailResetCount  int     // 3
	WeakThreshold   int     // 2; weak once the counter exceeds this
}

func (o Options) withDefaults() Options {
	if o.MistouchEntries <= 0 {
		o.MistouchEntries = 30
	}
	if o.SizeRatio <= 0 {
		o.SizeRatio = 0.65
	}
	if o.FailResetCount <= 0 {
		o.FailResetCount = 3
	}
	if o.WeakThreshold <= 0 {
		o.WeakThreshold = 2
	}
	return o
}

// Outcome is what one training step reports upward.
type Outcome struct {
	Label    gesture.Label
	Progress float64
	Err      *gesture.EngineError
	Security gesture.SecurityLevel

	// Weak is set when the engine was told during this step that the
	// signature is too weak to keep.
	Weak bool

	// Deleted is set when the step reset the label.
	Deleted bool
}

// Tracker feeds samples to the binding's signature trainer. It is safe
// for concurrent use but steps are expected one at a time.
type Tracker struct {
	binding engine.Binding
	opts    Options
	log     monitoring.Logger

	mu        sync.Mutex
	firstSize int
	failCount int
	weakCount int
	stepWeak  bool
}

// New returns a Tracker.
func New(binding engine.Binding, opts Options) *Tracker {
	return &Tracker{
		binding: binding,
		opts:    opts.withDefaults(),
		log:     monitoring.Tagged("training"),
	}
}

// Train runs one training step for label.
func (t *Tracker) Train(ctx context.Context, label gesture.Label, s gesture.Sample) (Outcome, error) {
	t.mu.Lock()
	t.stepWeak = false
	t.mu.Unlock()

	res, err := t.binding.TrainSignature(ctx, label, s, t.onWeak)
	if err != nil {
		return Outcome{Label: label}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	size := s.Len()
	switch {
	case math.Abs(res.Progress-firstStepProgress) < progressTolerance:
		if t.firstSize == 0 {
			t.firstSize = size
			t.log.Debugf("first train data size: %d", size)
		}
	case res.Progress >= 1:
		t.firstSize = 0
	}

	out := Outcome{Label: label, Progress: res.Progress, Security: res.Security, Weak: t.stepWeak}
	if res.Err == nil {
		// an accepted sample clears the weak count
		t.failCount = 0
		t.weakCount = 0
		return out, nil
	}

	t.log.Debugf("add signature %s failed: %v, progress:%.2f failCount:%d size:%d",
		label, res.Err, res.Progress, t.failCount, size)

	if size <= t.opts.MistouchEntries {
		out.Err = gesture.NewEngineError(gesture.SignWithMistouch)
		return out, nil
	}

	if t.firstSize == 0 || res.Progress < firstStepProgress-progressTolerance {
		out.Err = res.Err
		out.Progress = 0
		return out, nil
	}

	out.Err = res.Err
	if float64(size) >= float64(t.firstSize)*t.opts.SizeRatio {
		if res.Progress >= halfwayProgress {
			t.failCount++
		}
	} else {
		t.failCount++
		out.Err = gesture.NewEngineError(gesture.SignTooFewWord)
	}

	if t.failCount >= t.opts.FailResetCount || res.Progress < halfwayProgress {
		if _, err := t.binding.DeleteLabel(ctx, label); err != nil {
			t.log.Printf("delete %s after failed training: %v", label, err)
		}
		t.failCount = 0
		out.Err = res.Err
		out.Progress = 0
		out.Deleted = true
	}
	return out, nil
}

func (t *Tracker) onWeak(level gesture.SecurityLevel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.weakCount++
	t.log.Debugf("security level too weak: %s (%d)", level, t.weakCount)
	weak := t.weakCount > t.opts.WeakThreshold
	if weak {
		t.stepWeak = true
	}
	return weak
}

// IsLowSecureSignature reports whether the engine has flagged the
// signature being trained as weak more often than the threshold allows
// since the last accepted sample.
func (t *Tracker) IsLowSecureSignature() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.weakCount > t.opts.WeakThreshold
}

// FailCount returns the consecutive failure count.
func (t *Tracker) FailCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failCount
}

// ResetFailures clears the consecutive failure count. Mode and target
// changes call it.
func (t *Tracker) ResetFailures() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failCount = 0
}
