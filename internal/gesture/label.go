package gesture

import (
	"fmt"
	"strconv"
)

// Built-in common gestures. Valid common indices lie strictly between
// CommonStart and CommonEnd.
const (
	CommonStart = 100
	Heart       = 101
	Down        = 102
	C           = 103
	CommonEnd   = 104
)

// Profile scopes developer-defined labels to a classifier and sub-classifier.
// The zero Profile is the implicit scope of indexed labels.
type Profile struct {
	Name string
	Sub  string
}

// Path returns the classifier path "name_sub", or "" for the implicit scope.
func (p Profile) Path() string {
	if p.Name == "" && p.Sub == "" {
		return ""
	}
	return p.Name + "_" + p.Sub
}

// Valid reports whether a classifier name has been set.
func (p Profile) Valid() bool { return p.Name != "" }

type labelKind uint8

const (
	kindNone labelKind = iota
	kindIndexed
	kindNamed
)

// Label is either an indexed slot or a developer-defined name scoped to a
// profile. The zero value means "no label". Labels are comparable and may
// be used as map keys; indexed and named labels never compare equal.
type Label struct {
	kind    labelKind
	index   int
	name    string
	profile Profile
}

// Indexed returns the label for a numeric slot.
func Indexed(i int) Label { return Label{kind: kindIndexed, index: i} }

// Named returns a developer-defined label. An empty name yields the zero
// label.
func Named(name string, profile Profile) Label {
	if name == "" {
		return Label{}
	}
	return Label{kind: kindNamed, name: name, profile: profile}
}

// IsZero reports whether l is "no label".
func (l Label) IsZero() bool { return l.kind == kindNone }

// IsIndexed reports whether l is an indexed slot.
func (l Label) IsIndexed() bool { return l.kind == kindIndexed }

// IsNamed reports whether l is a developer-defined name.
func (l Label) IsNamed() bool { return l.kind == kindNamed }

// Index returns the numeric slot, or 0 for non-indexed labels.
func (l Label) Index() int { return l.index }

// Name returns the developer-defined name, or "".
func (l Label) Name() string { return l.name }

// Profile returns the label's scope. Indexed labels live in the zero Profile.
func (l Label) Profile() Profile { return l.profile }

// IsCommon reports whether l is one of the built-in common gestures.
func (l Label) IsCommon() bool {
	return l.kind == kindIndexed && l.index > CommonStart && l.index < CommonEnd
}

// Key returns a stable string form used for persistence keys.
func (l Label) Key() string {
	switch l.kind {
	case kindIndexed:
		return strconv.Itoa(l.index)
	case kindNamed:
		return l.name
	}
	return ""
}

func (l Label) String() string {
	switch l.kind {
	case kindIndexed:
		switch l.index {
		case Heart:
			return "Heart"
		case Down:
			return "Down"
		case C:
			return "C"
		}
		return fmt.Sprintf("#%d", l.index)
	case kindNamed:
		if p := l.profile.Path(); p != "" {
			return p + "/" + l.name
		}
		return l.name
	}
	return "<none>"
}

// Contains reports whether labels holds l.
func Contains(labels []Label, l Label) bool {
	for _, c := range labels {
		if c == l {
			return true
		}
	}
	return false
}
