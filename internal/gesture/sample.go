// Package gesture defines the value types shared by the arbitration
// packages: motion samples, labels, score kinds, modes and engine errors.
package gesture

import (
	"fmt"
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/timeutil"
)

// EntryWidth is the number of scalars in one sensor entry.
const EntryWidth = 10

// Entry is one sensor reading: [0] time delta in ms, [1..3] angular
// velocity x/y/z. The remaining slots are reserved and left zero.
type Entry [EntryWidth]float32

// NewEntry builds an Entry from a time delta and a rotation vector.
func NewEntry(dtMillis, x, y, z float32) Entry {
	var e Entry
	e[0] = dtMillis
	e[1], e[2], e[3] = x, y, z
	return e
}

// Time returns the entry's time delta in milliseconds.
func (e Entry) Time() float32 { return e[0] }

// Rotation returns the x/y/z angular velocity.
func (e Entry) Rotation() [3]float32 { return [3]float32{e[1], e[2], e[3]} }

// SampleID identifies a captured sample. IDs are milliseconds since the
// process started and are strictly increasing.
type SampleID int64

// Sample is an immutable sequence of entries captured while the trigger
// was held.
type Sample struct {
	ID      SampleID
	Entries []Entry
}

// Len returns the number of entries.
func (s Sample) Len() int { return len(s.Entries) }

// Empty reports whether the sample carries no entries.
func (s Sample) Empty() bool { return len(s.Entries) == 0 }

// Flatten returns the row-major float layout native engines consume:
// Len()*EntryWidth scalars.
func (s Sample) Flatten() []float32 {
	out := make([]float32, 0, len(s.Entries)*EntryWidth)
	for _, e := range s.Entries {
		out = append(out, e[:]...)
	}
	return out
}

// SampleFromFlat rebuilds a sample from a flat buffer produced by Flatten.
func SampleFromFlat(id SampleID, data []float32) (Sample, error) {
	if len(data)%EntryWidth != 0 {
		return Sample{}, fmt.Errorf("flat sample length %d is not a multiple of %d", len(data), EntryWidth)
	}
	entries := make([]Entry, len(data)/EntryWidth)
	for i := range entries {
		copy(entries[i][:], data[i*EntryWidth:(i+1)*EntryWidth])
	}
	return Sample{ID: id, Entries: entries}, nil
}

// IDSource hands out SampleIDs derived from elapsed process time. Ids start
// at 1 since zero means unassigned. When two captures land in the same
// millisecond the later one is bumped by one so ids stay strictly
// increasing.
type IDSource struct {
	mu    sync.Mutex
	epoch *timeutil.Epoch
	last  SampleID
	used  bool
}

// NewIDSource creates an IDSource whose epoch starts now on clock.
func NewIDSource(clock timeutil.Clock) *IDSource {
	return &IDSource{epoch: timeutil.NewEpoch(clock)}
}

// Next returns the next id.
func (s *IDSource) Next() SampleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := SampleID(s.epoch.Millis())
	if id < 1 {
		id = 1
	}
	if s.used && id <= s.last {
		id = s.last + 1
	}
	s.last = id
	s.used = true
	return id
}
