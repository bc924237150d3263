package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
	"github.com/banshee-data/gesture.arbiter/internal/timeutil"
)

// NativeEngine is the flat, callback-style API exposed by recognizer
// libraries. Samples travel as row-major float buffers of
// entries*gesture.EntryWidth scalars. Callbacks may run on any goroutine,
// before or after the call returns.
type NativeEngine interface {
	VerifyGesture(targets []int, data []float32, entries int, done func(match int, score float32, err *gesture.EngineError))
	VerifyPredefinedGesture(classifier, sub string, targets []string, data []float32, entries int, done func(match string, score, conf float32))
	IdentifyCustomGesture(targets []int, data []float32, entries int) (match int, conf float32)
	IdentifyCustomGestureStr(targets []string, data []float32, entries int) (match string, conf float32)
	IdentifySignature(targets []int, data []float32, entries int, done func(match int, err *gesture.EngineError, attemptsLeft, secondsToReset int))
	AddSignature(index int, data []float32, entries int, weak func(level gesture.SecurityLevel) bool, done func(index int, err *gesture.EngineError, progress float32, level gesture.SecurityLevel))
	DeleteAction(index int) bool
	SetCustomGesture(index int, data []float32, entryCounts []int)
	SetCustomGestureStr(name string, data []float32, entryCounts []int)
	IsTwoGestureSimilar(a []float32, aEntries int, b []float32, bEntries int) bool
}

// NativeBinding adapts a NativeEngine into a Binding. Every call blocks
// until the engine answers, the context ends, or Timeout elapses. Native
// engines are not re-entrant: a call that gave up waiting still owns the
// engine until the engine returns and answers, and later calls queue
// behind it within their own bounded wait.
type NativeBinding struct {
	engine  NativeEngine
	timeout time.Duration
	clock   timeutil.Clock
	log     monitoring.Logger

	busy chan struct{} // holds one token while the engine is in use
}

// NewNativeBinding wraps engine with the given bounded wait. A nil clock
// uses the real clock.
func NewNativeBinding(engine NativeEngine, timeout time.Duration, clock timeutil.Clock) *NativeBinding {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NativeBinding{
		engine:  engine,
		timeout: timeout,
		clock:   clock,
		log:     monitoring.Tagged("engine"),
		busy:    make(chan struct{}, 1),
	}
}

// await runs start, which must eventually deliver exactly one value through
// its callback, and waits for it within the bounded wait.
func await[T any](ctx context.Context, b *NativeBinding, op string, start func(deliver func(T))) (T, error) {
	timer := b.clock.NewTimer(b.timeout)
	defer timer.Stop()

	var zero T
	select {
	case b.busy <- struct{}{}:
	case <-timer.C():
		b.log.Printf("%s: engine still busy after %s", op, b.timeout)
		return zero, fmt.Errorf("%s: engine busy: %w", op, ErrEngineTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	// The token goes back once start has returned and the answer arrived,
	// whichever is later.
	var inFlight sync.WaitGroup
	inFlight.Add(2)
	go func() {
		inFlight.Wait()
		<-b.busy
	}()

	ch := make(chan T, 1)
	var once sync.Once
	deliver := func(v T) {
		once.Do(func() {
			ch <- v
			inFlight.Done()
		})
	}
	go func() {
		defer inFlight.Done()
		start(deliver)
	}()

	select {
	case v := <-ch:
		return v, nil
	case <-timer.C():
		b.log.Printf("%s: no answer after %s", op, b.timeout)
		return zero, fmt.Errorf("%s: %w", op, ErrEngineTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func indices(labels []gesture.Label) ([]int, error) {
	out := make([]int, 0, len(labels))
	for _, l := range labels {
		if !l.IsIndexed() {
			return nil, fmt.Errorf("label %s is not indexed", l)
		}
		out = append(out, l.Index())
	}
	return out, nil
}

func names(labels []gesture.Label) ([]string, error) {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !l.IsNamed() {
			return nil, fmt.Errorf("label %s is not named", l)
		}
		out = append(out, l.Name())
	}
	return out, nil
}

func flatten(samples []gesture.Sample) ([]float32, []int) {
	var data []float32
	counts := make([]int, len(samples))
	for i, s := range samples {
		data = append(data, s.Flatten()...)
		counts[i] = s.Len()
	}
	return data, counts
}

// ClassifyCommon implements Binding.
func (b *NativeBinding) ClassifyCommon(ctx context.Context, s gesture.Sample, candidates []gesture.Label) (CommonResult, error) {
	if len(candidates) == 0 {
		return CommonResult{}, ErrNoCandidates
	}
	targets, err := indices(candidates)
	if err != nil {
		return CommonResult{}, err
	}
	data := s.Flatten()
	return await(ctx, b, "VerifyGesture", func(deliver func(CommonResult)) {
		b.engine.VerifyGesture(targets, data, s.Len(), func(match int, score float32, err *gesture.EngineError) {
			if err != nil || match <= 0 {
				deliver(CommonResult{})
				return
			}
			deliver(CommonResult{Label: gesture.Indexed(match), Score: gesture.CommonScore(score)})
		})
	})
}

// ClassifyPredefined implements Binding.
func (b *NativeBinding) ClassifyPredefined(ctx context.Context, s gesture.Sample, profile gesture.Profile, candidates []gesture.Label) (PredefinedResult, error) {
	if len(candidates) == 0 {
		return PredefinedResult{}, ErrNoCandidates
	}
	if !profile.Valid() {
		return PredefinedResult{}, fmt.Errorf("classify predefined: empty classifier")
	}
	targets, err := names(candidates)
	if err != nil {
		return PredefinedResult{}, err
	}
	data := s.Flatten()
	return await(ctx, b, "VerifyPredefinedGesture", func(deliver func(PredefinedResult)) {
		b.engine.VerifyPredefinedGesture(profile.Name, profile.Sub, targets, data, s.Len(), func(match string, score, conf float32) {
			deliver(PredefinedResult{
				Label: gesture.Named(match, profile),
				Score: gesture.Confidence(score),
				Conf:  float64(conf),
			})
		})
	})
}

// ClassifyCustom implements Binding.
func (b *NativeBinding) ClassifyCustom(ctx context.Context, s gesture.Sample, candidates []gesture.Label) (CustomResult, error) {
	if len(candidates) == 0 {
		return CustomResult{}, ErrNoCandidates
	}
	data := s.Flatten()
	if candidates[0].IsNamed() {
		targets, err := names(candidates)
		if err != nil {
			return CustomResult{}, err
		}
		profile := candidates[0].Profile()
		return await(ctx, b, "IdentifyCustomGestureStr", func(deliver func(CustomResult)) {
			match, conf := b.engine.IdentifyCustomGestureStr(targets, data, s.Len())
			deliver(CustomResult{Label: gesture.Named(match, profile), Confidence: float64(conf)})
		})
	}
	targets, err := indices(candidates)
	if err != nil {
		return CustomResult{}, err
	}
	return await(ctx, b, "IdentifyCustomGesture", func(deliver func(CustomResult)) {
		match, conf := b.engine.IdentifyCustomGesture(targets, data, s.Len())
		if match <= 0 {
			deliver(CustomResult{})
			return
		}
		deliver(CustomResult{Label: gesture.Indexed(match), Confidence: float64(conf)})
	})
}

// IdentifySignature implements Binding.
func (b *NativeBinding) IdentifySignature(ctx context.Context, s gesture.Sample, candidates []gesture.Label) (SignatureResult, error) {
	targets, err := indices(candidates)
	if err != nil {
		return SignatureResult{}, err
	}
	data := s.Flatten()
	return await(ctx, b, "IdentifySignature", func(deliver func(SignatureResult)) {
		b.engine.IdentifySignature(targets, data, s.Len(), func(match int, err *gesture.EngineError, attemptsLeft, secondsToReset int) {
			r := SignatureResult{Err: err, AttemptsLeft: attemptsLeft, SecondsToReset: secondsToReset}
			if err == nil && match > 0 {
				r.Match = true
				r.Label = gesture.Indexed(match)
			}
			deliver(r)
		})
	})
}

// TrainSignature implements Binding.
func (b *NativeBinding) TrainSignature(ctx context.Context, label gesture.Label, s gesture.Sample, weak WeakSecurityFunc) (TrainResult, error) {
	if !label.IsIndexed() {
		return TrainResult{}, fmt.Errorf("train signature: label %s is not indexed", label)
	}
	if weak == nil {
		weak = func(gesture.SecurityLevel) bool { return false }
	}
	data := s.Flatten()
	return await(ctx, b, "AddSignature", func(deliver func(TrainResult)) {
		b.engine.AddSignature(label.Index(), data, s.Len(), weak, func(_ int, err *gesture.EngineError, progress float32, level gesture.SecurityLevel) {
			deliver(TrainResult{Label: label, Progress: float64(progress), Err: err, Security: level})
		})
	})
}

// DeleteLabel implements Binding.
func (b *NativeBinding) DeleteLabel(ctx context.Context, label gesture.Label) (bool, error) {
	if !label.IsIndexed() {
		return false, fmt.Errorf("delete label: label %s is not indexed", label)
	}
	return await(ctx, b, "DeleteAction", func(deliver func(bool)) {
		deliver(b.engine.DeleteAction(label.Index()))
	})
}

// SetCustomGesture implements Binding.
func (b *NativeBinding) SetCustomGesture(ctx context.Context, label gesture.Label, samples []gesture.Sample) error {
	if label.IsZero() {
		return fmt.Errorf("set custom gesture: empty label")
	}
	data, counts := flatten(samples)
	_, err := await(ctx, b, "SetCustomGesture", func(deliver func(struct{})) {
		switch {
		case label.IsNamed():
			b.engine.SetCustomGestureStr(label.Name(), data, counts)
		case label.IsIndexed():
			b.engine.SetCustomGesture(label.Index(), data, counts)
		}
		deliver(struct{}{})
	})
	return err
}

// IsSimilar implements Binding.
func (b *NativeBinding) IsSimilar(ctx context.Context, a, c gesture.Sample) (bool, error) {
	da, dc := a.Flatten(), c.Flatten()
	return await(ctx, b, "IsTwoGestureSimilar", func(deliver func(bool)) {
		deliver(b.engine.IsTwoGestureSimilar(da, a.Len(), dc, c.Len()))
	})
}
