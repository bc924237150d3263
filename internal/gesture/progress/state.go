// Package progress holds the training progress state, the only gesture
// state persisted across sessions, and the stores that save it.
package progress

import (
	"context"
	"errors"
	"sort"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// ErrNotFound is returned by Store.Load when nothing has been saved yet.
var ErrNotFound = errors.New("progress: no saved state")

// Store persists State.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}

// State is the cumulative training bookkeeping. It is not safe for
// concurrent use; the session manager guards it.
type State struct {
	TrainProgress            map[int]float64 `json:"train_progress"`
	UseUserGesture           map[int]bool    `json:"use_user_gesture"`
	UsePredefinedUserGesture map[string]bool `json:"use_predefined_user_gesture"`
	UserGestureCount         map[int]int64   `json:"user_gesture_count"`
	CommonGestureCount       map[int]int64   `json:"common_gesture_count"`
	FailedGestureCount       map[int]int64   `json:"failed_gesture_count"`
}

// NewState returns an empty State with every map allocated.
func NewState() *State {
	s := &State{}
	s.normalize()
	return s
}

// normalize allocates any nil maps, e.g. after decoding an older file.
func (s *State) normalize() {
	if s.TrainProgress == nil {
		s.TrainProgress = make(map[int]float64)
	}
	if s.UseUserGesture == nil {
		s.UseUserGesture = make(map[int]bool)
	}
	if s.UsePredefinedUserGesture == nil {
		s.UsePredefinedUserGesture = make(map[string]bool)
	}
	if s.UserGestureCount == nil {
		s.UserGestureCount = make(map[int]int64)
	}
	if s.CommonGestureCount == nil {
		s.CommonGestureCount = make(map[int]int64)
	}
	if s.FailedGestureCount == nil {
		s.FailedGestureCount = make(map[int]int64)
	}
}

// IncUserGestureCount bumps the custom-recognizer hit counter for target.
func (s *State) IncUserGestureCount(target int) int64 {
	s.UserGestureCount[target]++
	return s.UserGestureCount[target]
}

// IncCommonGestureCount bumps the common-recognizer hit counter for target.
func (s *State) IncCommonGestureCount(target int) int64 {
	s.CommonGestureCount[target]++
	return s.CommonGestureCount[target]
}

// IncFailedGestureCount bumps the no-match counter for target.
func (s *State) IncFailedGestureCount(target int) int64 {
	s.FailedGestureCount[target]++
	return s.FailedGestureCount[target]
}

// Total sums every counter.
func (s *State) Total() int64 {
	var total int64
	for _, m := range []map[int]int64{s.UserGestureCount, s.CommonGestureCount, s.FailedGestureCount} {
		for _, v := range m {
			total += v
		}
	}
	return total
}

// EnableCustom marks label as trained on the custom recognizer.
func (s *State) EnableCustom(l gesture.Label) {
	switch {
	case l.IsIndexed():
		s.UseUserGesture[l.Index()] = true
	case l.IsNamed():
		s.UsePredefinedUserGesture[l.Name()] = true
	}
}

// CustomEnabled reports whether label has been trained on the custom
// recognizer.
func (s *State) CustomEnabled(l gesture.Label) bool {
	switch {
	case l.IsIndexed():
		return s.UseUserGesture[l.Index()]
	case l.IsNamed():
		return s.UsePredefinedUserGesture[l.Name()]
	}
	return false
}

// CustomIndexed returns the indexed labels enabled for the custom
// recognizer, in ascending order.
func (s *State) CustomIndexed() []gesture.Label {
	idx := make([]int, 0, len(s.UseUserGesture))
	for i, on := range s.UseUserGesture {
		if on {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make([]gesture.Label, len(idx))
	for i, v := range idx {
		out[i] = gesture.Indexed(v)
	}
	return out
}

// CustomNamed returns the named labels enabled for the custom recognizer
// under profile, sorted by name.
func (s *State) CustomNamed(p gesture.Profile) []gesture.Label {
	names := make([]string, 0, len(s.UsePredefinedUserGesture))
	for n, on := range s.UsePredefinedUserGesture {
		if on {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	out := make([]gesture.Label, len(names))
	for i, n := range names {
		out[i] = gesture.Named(n, p)
	}
	return out
}

// ResetCustom forgets every custom-recognizer flag.
func (s *State) ResetCustom() {
	s.UseUserGesture = make(map[int]bool)
	s.UsePredefinedUserGesture = make(map[string]bool)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := NewState()
	for k, v := range s.TrainProgress {
		c.TrainProgress[k] = v
	}
	for k, v := range s.UseUserGesture {
		c.UseUserGesture[k] = v
	}
	for k, v := range s.UsePredefinedUserGesture {
		c.UsePredefinedUserGesture[k] = v
	}
	for k, v := range s.UserGestureCount {
		c.UserGestureCount[k] = v
	}
	for k, v := range s.CommonGestureCount {
		c.CommonGestureCount[k] = v
	}
	for k, v := range s.FailedGestureCount {
		c.FailedGestureCount[k] = v
	}
	return c
}
