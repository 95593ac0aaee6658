package analysis

import (
	"errors"
	"fmt"
)

// ErrTimeout reports that a program exceeded its deadline.
var ErrTimeout = errors.New("execution exceeded its deadline")

// RuntimeError reports that a program raised an error or touched a capability
// outside the allow-list. Message is the underlying cause, surfaced verbatim.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return "runtime failure: " + e.Message
}

// NormalizationKind distinguishes why a payload could not be interpreted.
type NormalizationKind string

const (
	NormalizationInvalidEncoding NormalizationKind = "invalid-encoding"
	NormalizationNotMapping      NormalizationKind = "not-a-mapping"
	NormalizationUnsupportedType NormalizationKind = "unsupported-type"
	NormalizationNoOutput        NormalizationKind = "no-output"
)

// NormalizationError reports that a payload could not be interpreted as a result.
type NormalizationError struct {
	Kind  NormalizationKind
	Cause error
}

func (e *NormalizationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("normalization failure (%s)", e.Kind)
	}
	return fmt.Sprintf("normalization failure (%s): %v", e.Kind, e.Cause)
}

func (e *NormalizationError) Unwrap() error {
	return e.Cause
}

// ErrorCode maps a core error onto a stable machine readable code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var runtimeErr *RuntimeError
	var normErr *NormalizationError
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &runtimeErr):
		return "runtime_failure"
	case errors.As(err, &normErr):
		return "normalization_failure:" + string(normErr.Kind)
	default:
		return "internal"
	}
}
