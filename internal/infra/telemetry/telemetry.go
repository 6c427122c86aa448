package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
)

// DefaultNamespace prefixes every deadline-jail metric.
const DefaultNamespace = "deadline_jail"

// DomainMetricsOptions configures the lifecycle collectors.
type DomainMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// DomainMetrics implements port.LifecycleMetrics with Prometheus counters.
type DomainMetrics struct {
	Transitions *prometheus.CounterVec
	Executions  *prometheus.CounterVec
}

// NewDomainMetrics constructs the task transition and consequence execution counters and
// registers them, reusing collectors that are already registered.
func NewDomainMetrics(opts DomainMetricsOptions) (*DomainMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	transitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_transitions_total",
		Help:      "Task status transitions partitioned by target status.",
	}, []string{"status"}))
	if err != nil {
		return nil, fmt.Errorf("register transitions collector: %w", err)
	}

	executions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consequence_executions_total",
		Help:      "Recorded consequence executions partitioned by consequence type and selection mode.",
	}, []string{"type", "selection"}))
	if err != nil {
		return nil, fmt.Errorf("register executions collector: %w", err)
	}

	return &DomainMetrics{Transitions: transitions, Executions: executions}, nil
}

// TaskTransitioned counts a task entering status.
func (m *DomainMetrics) TaskTransitioned(status domain.TaskStatus) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(status)).Inc()
}

// ConsequenceExecuted counts a recorded execution.
func (m *DomainMetrics) ConsequenceExecuted(kind domain.ConsequenceType, selection string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(string(kind), selection).Inc()
}

func registerCounterVec(reg prometheus.Registerer, collector *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

var _ port.LifecycleMetrics = (*DomainMetrics)(nil)
