// Package capture turns a motion sensor into discrete gesture samples.
// A Sampler records angular velocity on a fixed tick while the trigger is
// held, and a SerialSource feeds it from IMU lines.
package capture

import (
	"sync"
	"time"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
	"github.com/banshee-data/gesture.arbiter/internal/timeutil"
)

// DefaultInterval is the polling period of a Sampler.
const DefaultInterval = 16 * time.Millisecond

// MotionSource reports the current angular velocity. ok is false when no
// new reading is available since the last call.
type MotionSource interface {
	AngularVelocity() (x, y, z float32, ok bool)
}

// Sampler polls a MotionSource between Start and Stop and emits one
// gesture.Sample per capture on Samples. Captures with no entries are
// dropped.
type Sampler struct {
	source   MotionSource
	clock    timeutil.Clock
	interval time.Duration
	ids      *gesture.IDSource
	out      chan gesture.Sample
	log      monitoring.Logger

	// OnDraw, if set, is called with true when a capture starts and false
	// when it ends.
	OnDraw func(start bool)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSampler returns an idle Sampler. A nil clock uses the real clock and a
// non-positive interval uses DefaultInterval.
func NewSampler(source MotionSource, clock timeutil.Clock, interval time.Duration, ids *gesture.IDSource) *Sampler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if ids == nil {
		ids = gesture.NewIDSource(clock)
	}
	return &Sampler{
		source:   source,
		clock:    clock,
		interval: interval,
		ids:      ids,
		out:      make(chan gesture.Sample, 8),
		log:      monitoring.Tagged("capture"),
	}
}

// Samples delivers completed captures.
func (s *Sampler) Samples() <-chan gesture.Sample { return s.out }

// Capturing reports whether a capture is in progress.
func (s *Sampler) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Start begins a capture. It is a no-op while one is running.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	if s.OnDraw != nil {
		s.OnDraw(true)
	}
}

// Stop ends the capture and waits for the sample to be emitted.
func (s *Sampler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	if s.OnDraw != nil {
		s.OnDraw(false)
	}
}

func (s *Sampler) run(stop, done chan struct{}) {
	defer close(done)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	var entries []gesture.Entry
	last := s.clock.Now()
	for {
		select {
		case now := <-ticker.C():
			x, y, z, ok := s.source.AngularVelocity()
			if !ok {
				continue
			}
			dt := float32(0)
			if len(entries) > 0 {
				dt = float32(now.Sub(last)) / float32(time.Millisecond)
			}
			last = now
			entries = append(entries, gesture.NewEntry(dt, x, y, z))
		case <-stop:
			s.emit(entries)
			return
		}
	}
}

func (s *Sampler) emit(entries []gesture.Entry) {
	if len(entries) == 0 {
		s.log.Debugf("empty capture dropped")
		return
	}
	sample := gesture.Sample{ID: s.ids.Next(), Entries: entries}
	select {
	case s.out <- sample:
		s.log.Debugf("gesture ID:%d captured, %d entries", sample.ID, len(entries))
	default:
		s.log.Printf("consumer too slow, gesture ID:%d dropped", sample.ID)
	}
}
