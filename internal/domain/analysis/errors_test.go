package analysis

import (
	"errors"
	"fmt"
	"testing"
)

func TestOutcomeErr(t *testing.T) {
	t.Parallel()

	if err := Succeeded(TextPayload("{}")).Err(); err != nil {
		t.Fatalf("expected nil error for success, got %v", err)
	}
	if err := TimedOut().Err(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	var runtimeErr *RuntimeError
	if err := Failed("boom").Err(); !errors.As(err, &runtimeErr) || runtimeErr.Message != "boom" {
		t.Fatalf("expected runtime error carrying message, got %v", err)
	}
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                                       nil,
		"timeout":                                fmt.Errorf("wrapped: %w", ErrTimeout),
		"runtime_failure":                        &RuntimeError{Message: "x"},
		"normalization_failure:invalid-encoding": &NormalizationError{Kind: NormalizationInvalidEncoding},
		"normalization_failure:unsupported-type": fmt.Errorf("ctx: %w", &NormalizationError{Kind: NormalizationUnsupportedType}),
		"internal":                               errors.New("docker unreachable"),
	}

	for want, err := range cases {
		if got := ErrorCode(err); got != want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestRawPayloadVariants(t *testing.T) {
	t.Parallel()

	if text, ok := TextPayload("x").Text(); !ok || text != "x" {
		t.Fatalf("text payload not recognised")
	}
	if fields, ok := StructuredPayload(nil).Structured(); !ok || fields == nil {
		t.Fatalf("structured payload should carry a non-nil mapping")
	}
	if OtherPayload(3.5).Kind() != PayloadOther {
		t.Fatalf("expected other payload kind")
	}
	if NoPayload().Kind() != PayloadNone {
		t.Fatalf("expected none payload kind")
	}
}
