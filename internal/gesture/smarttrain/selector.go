// Package smarttrain filters identification samples down to a small set of
// confident exemplars used to train the custom recognizer.
package smarttrain

import (
	"sort"
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
)

// KeyEpsilon is added to a colliding score until it is unique.
const KeyEpsilon = 0.0001

// Options configures a Selector. Zero fields take the defaults.
type Options struct {
	FirstThreshold float64 // default 0.9
	PassThreshold  float64 // default 0.8
	MinSamples     int     // default 3
}

func (o Options) withDefaults() Options {
	if o.FirstThreshold == 0 {
		o.FirstThreshold = 0.9
	}
	if o.PassThreshold == 0 {
		o.PassThreshold = 0.8
	}
	if o.MinSamples <= 0 {
		o.MinSamples = 3
	}
	return o
}

type keyed struct {
	key    float64
	sample gesture.Sample
}

// Selector holds the open smart-train session and the exemplar collection
// of every completed session.
type Selector struct {
	mu   sync.Mutex
	opts Options
	log  monitoring.Logger

	label      gesture.Label
	pool       []keyed // ascending by key
	collection map[gesture.Label][]gesture.Sample
}

// New returns an empty Selector.
func New(opts Options) *Selector {
	return &Selector{
		opts:       opts.withDefaults(),
		log:        monitoring.Tagged("smarttrain"),
		collection: make(map[gesture.Label][]gesture.Sample),
	}
}

// Offer submits a scored sample for label. The first sample of a session
// must beat FirstThreshold; later ones PassThreshold. A rejected first
// offer leaves the session empty and the next offer is judged as first
// again. Offering a different label than the open session discards the
// open session.
func (s *Selector) Offer(label gesture.Label, sample gesture.Sample, score float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) > 0 && label != s.label {
		s.log.Printf("label changed from %s to %s, dropping %d pending samples", s.label, label, len(s.pool))
		s.pool = nil
		s.label = gesture.Label{}
	}

	threshold := s.opts.PassThreshold
	if len(s.pool) == 0 {
		threshold = s.opts.FirstThreshold
	}
	if score <= threshold {
		s.log.Debugf("reject ID:%d Score:%.4f (need > %.2f)", sample.ID, score, threshold)
		return false
	}

	key := score
	for s.hasKeyLocked(key) {
		key += KeyEpsilon
	}
	i := sort.Search(len(s.pool), func(i int) bool { return s.pool[i].key > key })
	s.pool = append(s.pool, keyed{})
	copy(s.pool[i+1:], s.pool[i:])
	s.pool[i] = keyed{key: key, sample: sample}
	s.label = label

	s.log.Debugf("add gesture for smart train ID:%d Score:%.4f", sample.ID, score)
	return true
}

func (s *Selector) hasKeyLocked(key float64) bool {
	i := sort.Search(len(s.pool), func(i int) bool { return s.pool[i].key >= key })
	return i < len(s.pool) && s.pool[i].key == key
}

// Drain closes the session for label once MinSamples have been accepted.
// It returns the samples in submission order (ascending score) and files
// the descending-score list under label in the exemplar collection,
// replacing any earlier session for the same label. With fewer samples
// the session stays open and Drain returns false.
func (s *Selector) Drain(label gesture.Label) ([]gesture.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) > 0 && label != s.label {
		s.log.Printf("drain for %s but open session is %s", label, s.label)
		return nil, false
	}
	if len(s.pool) < s.opts.MinSamples {
		s.log.Debugf("target:%s pending:%d, need %d", label, len(s.pool), s.opts.MinSamples)
		return nil, false
	}

	descending := make([]gesture.Sample, len(s.pool))
	submit := make([]gesture.Sample, len(s.pool))
	for i, k := range s.pool {
		descending[len(s.pool)-1-i] = k.sample
		submit[i] = k.sample
	}
	s.collection[label] = descending
	s.pool = nil
	s.label = gesture.Label{}

	s.log.Printf("target:%s drained %d samples", label, len(submit))
	return submit, true
}

// Pending returns the open session's label and sample count.
func (s *Selector) Pending() (gesture.Label, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label, len(s.pool)
}

// Scores returns the open session's keys in ascending order.
func (s *Selector) Scores() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.pool))
	for i, k := range s.pool {
		out[i] = k.key
	}
	return out
}

// Collection returns a copy of the exemplar collection: label to samples,
// highest score first.
func (s *Selector) Collection() map[gesture.Label][]gesture.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[gesture.Label][]gesture.Sample, len(s.collection))
	for l, samples := range s.collection {
		out[l] = append([]gesture.Sample(nil), samples...)
	}
	return out
}

// Restore installs a previously persisted exemplar set for label.
func (s *Selector) Restore(label gesture.Label, samples []gesture.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection[label] = append([]gesture.Sample(nil), samples...)
}

// Reset drops the open session. The exemplar collection is kept.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = nil
	s.label = gesture.Label{}
}

// ClearCollection drops every stored exemplar set.
func (s *Selector) ClearCollection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = make(map[gesture.Label][]gesture.Sample)
}
