package gesture

import "fmt"

// ErrorCode is an engine or training error code. Zero means no error.
type ErrorCode int

const (
	SignWithMistouch ErrorCode = -200
	SignTooFewWord   ErrorCode = -204
)

// EngineError is a recognizer-reported failure. It is delivered to
// observers as a value alongside progress, never raised.
type EngineError struct {
	Code    ErrorCode
	Message string
}

// NewEngineError returns an EngineError with the default message for code.
func NewEngineError(code ErrorCode) *EngineError {
	msg := ""
	switch code {
	case SignWithMistouch:
		msg = "Sign with mistouch"
	case SignTooFewWord:
		msg = "Sign too few words"
	}
	return &EngineError{Code: code, Message: msg}
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine error %d", e.Code)
	}
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}
