package producer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

func TestNewServiceProvidesDefaultCatalogue(t *testing.T) {
	t.Parallel()

	service := NewService()

	first, err := service.NextRequest(context.Background())
	if err != nil {
		t.Fatalf("NextRequest returned error: %v", err)
	}
	if first.ID != "sum" {
		t.Fatalf("expected first request ID 'sum', got %q", first.ID)
	}
	if err := first.Dataset.Validate(); err != nil {
		t.Fatalf("sample dataset is invalid: %v", err)
	}

	second, err := service.NextRequest(context.Background())
	if err != nil {
		t.Fatalf("NextRequest returned error: %v", err)
	}
	if second.ID != "describe" {
		t.Fatalf("expected second request ID 'describe', got %q", second.ID)
	}
}

func TestNextRequestReturnsEOFWhenExhausted(t *testing.T) {
	t.Parallel()

	service := NewService()

	_, _ = service.NextRequest(context.Background())
	_, _ = service.NextRequest(context.Background())

	_, err := service.NextRequest(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestNextRequestContextCancellation(t *testing.T) {
	t.Parallel()

	service := NewService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.NextRequest(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAddAssignsIDWhenMissing(t *testing.T) {
	t.Parallel()

	service := NewServiceFrom(analysis.Request{Program: analysis.Program{Source: "result = '{}'"}})

	request, err := service.NextRequest(context.Background())
	if err != nil {
		t.Fatalf("NextRequest returned error: %v", err)
	}
	if _, err := uuid.Parse(request.ID); err != nil {
		t.Fatalf("expected generated uuid, got %q: %v", request.ID, err)
	}

	if _, err := service.NextRequest(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after the only request, got %v", err)
	}
}

func TestAddKeepsExplicitID(t *testing.T) {
	t.Parallel()

	service := NewServiceFrom()
	service.Add(analysis.Request{ID: "custom"})

	request, err := service.NextRequest(context.Background())
	if err != nil {
		t.Fatalf("NextRequest returned error: %v", err)
	}
	if request.ID != "custom" {
		t.Fatalf("expected custom ID, got %q", request.ID)
	}
}
