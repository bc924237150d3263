// Package stats tracks, per classifier profile and label, how often each
// recognizer got a label wrong and how much confidence it showed when it
// got it right. The arbiter consults these counters to decide whether the
// custom recognizer should override the common one.
package stats

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// ErrorCount counts wrong answers per recognizer.
type ErrorCount struct {
	Common int `json:"common"`
	User   int `json:"user"`
}

// ConfidenceSum accumulates scores of correct answers per recognizer. It is
// a running sum, not a mean.
type ConfidenceSum struct {
	Common float64 `json:"common"`
	User   float64 `json:"user"`
}

// LabelStats is the pair of counters kept for one label.
type LabelStats struct {
	Errors     ErrorCount    `json:"errors"`
	Confidence ConfidenceSum `json:"confidence"`
}

// FavorsCommon applies the lexicographic tie-break: fewer common errors
// win, then equal errors fall back to the larger confidence sum, with
// ties going to the common recognizer.
func (s LabelStats) FavorsCommon() bool {
	if s.Errors.Common > s.Errors.User {
		return false
	}
	if s.Errors.Common == s.Errors.User && s.Confidence.Common < s.Confidence.User {
		return false
	}
	return true
}

type scope struct {
	exists bool
	labels map[gesture.Label]*LabelStats
}

// Store is the per-profile statistics collection. The zero value is not
// usable; call New.
type Store struct {
	mu     sync.RWMutex
	scopes map[string]*scope
}

// New returns an empty Store.
func New() *Store {
	return &Store{scopes: make(map[string]*scope)}
}

func (s *Store) scopeLocked(p gesture.Profile) *scope {
	sc, ok := s.scopes[p.Path()]
	if !ok {
		sc = &scope{labels: make(map[gesture.Label]*LabelStats)}
		s.scopes[p.Path()] = sc
	}
	return sc
}

func (s *Store) ensureLocked(p gesture.Profile, l gesture.Label) *LabelStats {
	sc := s.scopeLocked(p)
	ls, ok := sc.labels[l]
	if !ok {
		ls = &LabelStats{}
		sc.labels[l] = ls
	}
	return ls
}

// Ensure creates zero counters for label under profile if absent.
func (s *Store) Ensure(p gesture.Profile, l gesture.Label) {
	if l.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(p, l)
}

// RecordMismatch increments r's error counter for label.
func (s *Store) RecordMismatch(p gesture.Profile, l gesture.Label, r gesture.Recognizer) {
	if l.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.ensureLocked(p, l)
	if r == gesture.RecognizerCustom {
		ls.Errors.User++
	} else {
		ls.Errors.Common++
	}
}

// RecordConfidence adds score to r's confidence sum for label. Callers only
// record confidence when the recognizer's answer matched the expected label.
func (s *Store) RecordConfidence(p gesture.Profile, l gesture.Label, r gesture.Recognizer, score float64) {
	if l.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.ensureLocked(p, l)
	if r == gesture.RecognizerCustom {
		ls.Confidence.User += score
	} else {
		ls.Confidence.Common += score
	}
}

// FavorsCommon reports whether the common recognizer should be trusted for
// label. Labels without data favour the common recognizer.
func (s *Store) FavorsCommon(p gesture.Profile, l gesture.Label) bool {
	ls, ok := s.Lookup(p, l)
	if !ok {
		return true
	}
	return ls.FavorsCommon()
}

// Lookup returns a copy of the counters for label.
func (s *Store) Lookup(p gesture.Profile, l gesture.Label) (LabelStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[p.Path()]
	if !ok {
		return LabelStats{}, false
	}
	ls, ok := sc.labels[l]
	if !ok {
		return LabelStats{}, false
	}
	return *ls, true
}

// Exists reports whether a full statistics pass has completed for profile.
func (s *Store) Exists(p gesture.Profile) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[p.Path()]
	return ok && sc.exists
}

// MarkExists records that a full statistics pass completed for profile.
func (s *Store) MarkExists(p gesture.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopeLocked(p).exists = true
}

// Reset clears every profile.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = make(map[string]*scope)
}

// ResetProfile clears one profile's counters and its exists flag.
func (s *Store) ResetProfile(p gesture.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, p.Path())
}

// Row is one label's counters flattened for reporting.
type Row struct {
	Profile      string        `json:"profile"`
	Label        string        `json:"label"`
	Errors       ErrorCount    `json:"errors"`
	Confidence   ConfidenceSum `json:"confidence"`
	FavorsCommon bool          `json:"favors_common"`
}

// Snapshot returns every label's counters sorted by profile then label.
func (s *Store) Snapshot() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []Row
	for path, sc := range s.scopes {
		for l, ls := range sc.labels {
			rows = append(rows, Row{
				Profile:      path,
				Label:        l.String(),
				Errors:       ls.Errors,
				Confidence:   ls.Confidence,
				FavorsCommon: ls.FavorsCommon(),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Profile != rows[j].Profile {
			return rows[i].Profile < rows[j].Profile
		}
		return rows[i].Label < rows[j].Label
	})
	return rows
}

// ProfileSummary aggregates one profile for display.
type ProfileSummary struct {
	Profile              string  `json:"profile"`
	Exists               bool    `json:"exists"`
	Labels               int     `json:"labels"`
	CommonErrors         int     `json:"common_errors"`
	UserErrors           int     `json:"user_errors"`
	MeanCommonConfidence float64 `json:"mean_common_confidence"`
	MeanUserConfidence   float64 `json:"mean_user_confidence"`
}

// Summary returns per-profile totals. The means are over labels and are
// only for display; arbitration uses the raw sums.
func (s *Store) Summary() []ProfileSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProfileSummary, 0, len(s.scopes))
	for path, sc := range s.scopes {
		ps := ProfileSummary{Profile: path, Exists: sc.exists, Labels: len(sc.labels)}
		common := make([]float64, 0, len(sc.labels))
		user := make([]float64, 0, len(sc.labels))
		for _, ls := range sc.labels {
			ps.CommonErrors += ls.Errors.Common
			ps.UserErrors += ls.Errors.User
			common = append(common, ls.Confidence.Common)
			user = append(user, ls.Confidence.User)
		}
		if len(common) > 0 {
			ps.MeanCommonConfidence = stat.Mean(common, nil)
			ps.MeanUserConfidence = stat.Mean(user, nil)
		}
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Profile < out[j].Profile })
	return out
}
