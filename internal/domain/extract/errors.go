package extract

import (
	"errors"
	"fmt"
)

// ErrExtraction matches every failure to recover a delta mapping.
var ErrExtraction = errors.New("no recoverable delta mapping in model response")

// Reason classifies why extraction failed.
type Reason string

const (
	ReasonEmpty       Reason = "empty"
	ReasonNoObject    Reason = "no_object"
	ReasonInvalidJSON Reason = "invalid_json"
)

// Error carries the raw response so operators can debug without re-running
// the model call.
type Error struct {
	Reason Reason
	Raw    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v; raw response: %q", ErrExtraction, e.Reason, e.Err, e.Raw)
	}
	return fmt.Sprintf("%s (%s); raw response: %q", ErrExtraction, e.Reason, e.Raw)
}

// Unwrap exposes the underlying decode error.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is ErrExtraction.
func (e *Error) Is(target error) bool { return target == ErrExtraction }
