package analysis

import "time"

// OutcomeKind tags an Outcome.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeRuntimeFailure OutcomeKind = "runtime_failure"
)

// Outcome is the tagged result of running a Program: Success(RawPayload), Timeout or
// RuntimeFailure(message). It is produced by an engine and consumed once by the
// normalizer.
type Outcome struct {
	Kind     OutcomeKind
	Payload  RawPayload
	Message  string
	Duration time.Duration
	// Logs holds whatever the program printed, truncated by the engine.
	Logs string
}

// Succeeded builds a success outcome carrying payload.
func Succeeded(payload RawPayload) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

// TimedOut builds a timeout outcome.
func TimedOut() Outcome {
	return Outcome{Kind: OutcomeTimeout}
}

// Failed builds a runtime failure outcome with a human readable cause.
func Failed(message string) Outcome {
	return Outcome{Kind: OutcomeRuntimeFailure, Message: message}
}

// Err converts a non-success outcome into the matching typed error.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeTimeout:
		return ErrTimeout
	default:
		return &RuntimeError{Message: o.Message}
	}
}

// PayloadKind tags a RawPayload.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadText
	PayloadStructured
	PayloadOther
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadText:
		return "text"
	case PayloadStructured:
		return "structured"
	case PayloadOther:
		return "other"
	default:
		return "none"
	}
}

// RawPayload is the value a program bound to its output slot, before validation.
// It is either an encoded string, an already structured mapping, some other value,
// or nothing at all.
type RawPayload struct {
	kind   PayloadKind
	text   string
	fields map[string]any
	value  any
}

// TextPayload wraps an encoded string payload.
func TextPayload(text string) RawPayload {
	return RawPayload{kind: PayloadText, text: text}
}

// StructuredPayload wraps an already decoded mapping.
func StructuredPayload(fields map[string]any) RawPayload {
	if fields == nil {
		fields = map[string]any{}
	}
	return RawPayload{kind: PayloadStructured, fields: fields}
}

// OtherPayload wraps a value that is neither a string nor a mapping.
func OtherPayload(value any) RawPayload {
	return RawPayload{kind: PayloadOther, value: value}
}

// NoPayload represents an absent payload.
func NoPayload() RawPayload {
	return RawPayload{}
}

// Kind reports which variant the payload holds.
func (p RawPayload) Kind() PayloadKind { return p.kind }

// Text returns the encoded string when the payload is a Text variant.
func (p RawPayload) Text() (string, bool) { return p.text, p.kind == PayloadText }

// Structured returns the mapping when the payload is a Structured variant.
func (p RawPayload) Structured() (map[string]any, bool) { return p.fields, p.kind == PayloadStructured }

// Value returns the wrapped value of an Other variant.
func (p RawPayload) Value() any { return p.value }
