package gesture

// CommonScore is the 0..1 score produced by the indexed common-gesture
// recognizer.
type CommonScore float64

// Passes reports whether s reaches the pass threshold (inclusive).
func (s CommonScore) Passes(threshold CommonScore) bool { return s >= threshold }

// Confidence is the developer-defined recognizer's score. It is on a
// different scale from CommonScore and passes only when strictly above
// its threshold.
type Confidence float64

// Passes reports whether c is strictly above threshold.
func (c Confidence) Passes(threshold Confidence) bool { return c > threshold }

// Recognizer names one of the two recognizers being arbitrated.
type Recognizer uint8

const (
	RecognizerCommon Recognizer = iota
	RecognizerCustom
)

func (r Recognizer) String() string {
	if r == RecognizerCustom {
		return "custom"
	}
	return "common"
}
