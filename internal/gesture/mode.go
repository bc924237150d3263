package gesture

import (
	"strings"
)

// Mode is a bit set selecting what happens to the next captured sample.
type Mode uint32

const (
	ModeNone                          Mode = 0
	ModeIdentifyPlayerSignature       Mode = 0x02
	ModeDeveloperDefined              Mode = 0x08
	ModeTrainPlayerSignature          Mode = 0x10
	ModeAddPlayerGesture              Mode = 0x40
	ModeIdentifyPlayerGesture         Mode = 0x80
	ModeSmartTrainDeveloperDefined    Mode = 0x100
	ModeSmartIdentifyDeveloperDefined Mode = 0x200
	ModeSmartTrain                    Mode = 0x400
	ModeSmartIdentify                 Mode = 0x800
)

var modeNames = []struct {
	m    Mode
	name string
}{
	{ModeIdentifyPlayerSignature, "IdentifyPlayerSignature"},
	{ModeDeveloperDefined, "DeveloperDefined"},
	{ModeTrainPlayerSignature, "TrainPlayerSignature"},
	{ModeAddPlayerGesture, "AddPlayerGesture"},
	{ModeIdentifyPlayerGesture, "IdentifyPlayerGesture"},
	{ModeSmartTrainDeveloperDefined, "SmartTrainDeveloperDefined"},
	{ModeSmartIdentifyDeveloperDefined, "SmartIdentifyDeveloperDefined"},
	{ModeSmartTrain, "SmartTrain"},
	{ModeSmartIdentify, "SmartIdentify"},
}

// Has reports whether any bit of flag is set in m.
func (m Mode) Has(flag Mode) bool { return m&flag != 0 }

func (m Mode) String() string {
	if m == ModeNone {
		return "None"
	}
	var parts []string
	for _, n := range modeNames {
		if m.Has(n.m) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// ParseMode parses a "|" separated list of mode names.
func ParseMode(s string) (Mode, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "None") {
		return ModeNone, true
	}
	var m Mode
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range modeNames {
			if strings.EqualFold(part, n.name) {
				m |= n.m
				found = true
				break
			}
		}
		if !found {
			return ModeNone, false
		}
	}
	return m, true
}

// SecurityLevel is the engine's strength rating of a trained signature.
type SecurityLevel int

const (
	SecurityNone SecurityLevel = iota
	SecurityVeryPoor
	SecurityPoor
	SecurityNormal
	SecurityHigh
	SecurityVeryHigh
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityNone:
		return "None"
	case SecurityVeryPoor:
		return "VeryPoor"
	case SecurityPoor:
		return "Poor"
	case SecurityNormal:
		return "Normal"
	case SecurityHigh:
		return "High"
	case SecurityVeryHigh:
		return "VeryHigh"
	}
	return "Unknown"
}
