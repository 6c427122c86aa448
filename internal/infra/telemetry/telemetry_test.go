package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/infra/config"
)

func TestDomainMetricsCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewDomainMetrics(DomainMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewDomainMetrics: %v", err)
	}

	metrics.TaskTransitioned(domain.TaskStatusFailed)
	metrics.TaskTransitioned(domain.TaskStatusFailed)
	metrics.TaskTransitioned(domain.TaskStatusCompleted)
	metrics.ConsequenceExecuted(domain.ConsequenceTypeSocial, "random")

	if got := testutil.ToFloat64(metrics.Transitions.WithLabelValues("failed")); got != 2 {
		t.Fatalf("expected 2 failed transitions, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Transitions.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected 1 completed transition, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Executions.WithLabelValues("social", "random")); got != 1 {
		t.Fatalf("expected 1 random social execution, got %f", got)
	}

	count, err := testutil.GatherAndCount(registry, "deadline_jail_task_transitions_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two status series, got %d", count)
	}
}

func TestDomainMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewDomainMetrics(DomainMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("first NewDomainMetrics: %v", err)
	}
	second, err := NewDomainMetrics(DomainMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second NewDomainMetrics: %v", err)
	}

	first.TaskTransitioned(domain.TaskStatusCompleted)
	if got := testutil.ToFloat64(second.Transitions.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected shared collector, got %f", got)
	}
}

func TestDomainMetricsNilSafe(t *testing.T) {
	var metrics *DomainMetrics
	metrics.TaskTransitioned(domain.TaskStatusFailed)
	metrics.ConsequenceExecuted(domain.ConsequenceTypeAI, "explicit")
}

func TestTracerProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := newTracerProvider(context.Background(), config.TelemetrySettings{
		ServiceName:  "deadline-jail",
		SamplingRate: 1,
	}, sdktrace.WithSpanProcessor(recorder), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newTracerProvider: %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "lifecycle.fail")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "lifecycle.fail" {
		t.Fatalf("expected one recorded span, got %d", len(ended))
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
