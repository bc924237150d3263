package capture

import (
	"context"
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
	"github.com/banshee-data/gesture.arbiter/internal/serialmux"
)

// SerialSource is a MotionSource fed by IMU lines from a serial mux. The
// trigger lines start and stop the attached Sampler.
type SerialSource struct {
	mux    serialmux.SerialMuxInterface
	status serialmux.DeviceStatus
	log    monitoring.Logger

	mu      sync.Mutex
	latest  serialmux.GyroReading
	fresh   bool
	sampler *Sampler
	bad     int
}

// NewSerialSource wraps mux.
func NewSerialSource(mux serialmux.SerialMuxInterface) *SerialSource {
	return &SerialSource{mux: mux, log: monitoring.Tagged("capture", "serial")}
}

// Attach sets the sampler driven by trigger lines.
func (s *SerialSource) Attach(sampler *Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampler = sampler
}

// AngularVelocity returns the newest gyro reading once.
func (s *SerialSource) AngularVelocity() (x, y, z float32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return 0, 0, 0, false
	}
	s.fresh = false
	return s.latest.X, s.latest.Y, s.latest.Z, true
}

// Status returns the device's last reported status values.
func (s *SerialSource) Status() map[string]any { return s.status.Snapshot() }

// Malformed returns how many lines failed to parse.
func (s *SerialSource) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bad
}

// Run consumes lines until ctx ends or the subscription closes. A capture
// in progress is stopped on return.
func (s *SerialSource) Run(ctx context.Context) error {
	id, lines := s.mux.Subscribe()
	defer s.mux.Unsubscribe(id)
	defer s.stopSampler()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s.handle(line)
		}
	}
}

func (s *SerialSource) handle(line string) {
	switch serialmux.ClassifyPayload(line) {
	case serialmux.EventTypeGyro:
		g, err := serialmux.ParseGyro(line)
		s.mu.Lock()
		if err != nil {
			s.bad++
		} else {
			s.latest, s.fresh = g, true
		}
		s.mu.Unlock()
		if err != nil {
			s.log.Debugf("%v", err)
		}
	case serialmux.EventTypeTrigger:
		down, err := serialmux.ParseTrigger(line)
		if err != nil {
			s.mu.Lock()
			s.bad++
			s.mu.Unlock()
			s.log.Debugf("%v", err)
			return
		}
		s.mu.Lock()
		sampler := s.sampler
		if down {
			// drop a reading left over from before the press
			s.fresh = false
		}
		s.mu.Unlock()
		if sampler == nil {
			return
		}
		if down {
			sampler.Start()
		} else {
			sampler.Stop()
		}
	case serialmux.EventTypeStatus:
		if err := s.status.Apply(line); err != nil {
			s.log.Printf("status line: %v", err)
		}
	default:
		s.log.Debugf("unknown line: %s", line)
	}
}

func (s *SerialSource) stopSampler() {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler != nil {
		sampler.Stop()
	}
}
