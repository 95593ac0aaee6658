//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/thomassthus-stack/Tommytiger/internal/app/analyzer"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	kafkainfra "github.com/thomassthus-stack/Tommytiger/internal/infra/kafka"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime/script"
	"github.com/thomassthus-stack/Tommytiger/internal/testhelpers"
)

func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	const (
		requestsTopic = "integration-requests"
		reportsTopic  = "integration-reports"
	)
	broker := testhelpers.StartKafka(ctx, t, requestsTopic, reportsTopic)

	registry, err := runtime.NewRegistry(script.New(script.Config{}))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	log, _ := logtest.NewNullLogger()
	service := analyzer.NewService(registry, log)
	defer service.Close()

	dataset := map[string]any{
		"columns": []string{"a", "b"},
		"rows":    [][]any{{1, 2}, {3, 4}, {5, 6}},
	}
	requests := []any{
		map[string]any{
			"id":      "sum",
			"source":  `result = json.dumps({text: "sum=" + df.sum("b"), tables: [], charts: []});`,
			"dataset": dataset,
		},
		map[string]any{
			"id":      "loop",
			"source":  `while (true) {}`,
			"limits":  map[string]any{"deadline_ms": 200},
			"dataset": dataset,
		},
		map[string]any{
			"id":      "malformed",
			"source":  `result = "{not json";`,
			"dataset": dataset,
		},
		map[string]any{"type": "done"},
	}
	if err := testhelpers.ProduceJSON(ctx, broker, requestsTopic, requests...); err != nil {
		t.Fatalf("produce requests: %v", err)
	}

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers: []string{broker},
		Topic:   requestsTopic,
		GroupID: "integration-runner",
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	defer consumer.Close()

	publisher, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
		Brokers: []string{broker},
		Topic:   reportsTopic,
	})
	if err != nil {
		t.Fatalf("create publisher: %v", err)
	}
	defer publisher.Close()

	runCtx, cancelRun := context.WithTimeout(ctx, time.Minute)
	defer cancelRun()

	err = service.ExecuteFromProducer(runCtx, consumer, 0, 2, func(report analysis.Report) {
		if perr := publisher.PublishReport(runCtx, report); perr != nil {
			t.Errorf("publish report %q: %v", report.Request.ID, perr)
		}
	})
	if err != nil {
		t.Fatalf("ExecuteFromProducer: %v", err)
	}

	readCtx, cancelRead := context.WithTimeout(ctx, 30*time.Second)
	defer cancelRead()

	envelopes, err := testhelpers.ReadJSON(readCtx, broker, reportsTopic, "integration-verifier", 3)
	if err != nil {
		t.Fatalf("read reports: %v", err)
	}

	byID := make(map[string]map[string]any, len(envelopes))
	for _, envelope := range envelopes {
		id, _ := envelope["id"].(string)
		byID[id] = envelope
	}

	sum := byID["sum"]
	if sum["status"] != "success" {
		t.Fatalf("expected sum to succeed, got %v", sum)
	}
	if result, _ := sum["result"].(map[string]any); result["text"] != "sum=12" {
		t.Fatalf("unexpected sum result: %v", sum["result"])
	}
	if byID["loop"]["error_code"] != "timeout" {
		t.Fatalf("expected loop to time out, got %v", byID["loop"])
	}
	if byID["malformed"]["error_code"] != "normalization_failure:invalid-encoding" {
		t.Fatalf("expected malformed payload failure, got %v", byID["malformed"])
	}
}
