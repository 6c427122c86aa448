package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types, used as topic suffixes.
const (
	EventUserRegistered      = "user.registered"
	EventTaskCompleted       = "task.completed"
	EventTaskFailed          = "task.failed"
	EventConsequenceExecuted = "consequence.executed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("schema_version"), Value: []byte(schemaVersion)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes jail.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishTaskCompleted publishes jail.task.completed events.
func (p *EventPublisher) PublishTaskCompleted(ctx context.Context, event domain.TaskCompletedEvent) error {
	payload := struct {
		TaskID      string    `json:"task_id"`
		Title       string    `json:"title"`
		CompletedAt time.Time `json:"completed_at"`
		Overdue     bool      `json:"overdue"`
	}{
		TaskID:      event.TaskID,
		Title:       event.Title,
		CompletedAt: event.CompletedAt.UTC(),
		Overdue:     event.Overdue,
	}
	return p.publish(ctx, event.EventID, EventTaskCompleted, event.UserID, event.CompletedAt, payload)
}

// PublishTaskFailed publishes jail.task.failed events.
func (p *EventPublisher) PublishTaskFailed(ctx context.Context, event domain.TaskFailedEvent) error {
	payload := struct {
		TaskID        string    `json:"task_id"`
		Title         string    `json:"title"`
		FailedAt      time.Time `json:"failed_at"`
		ConsequenceID *string   `json:"consequence_id,omitempty"`
		RandomPick    bool      `json:"random_pick"`
	}{
		TaskID:        event.TaskID,
		Title:         event.Title,
		FailedAt:      event.FailedAt.UTC(),
		ConsequenceID: event.ConsequenceID,
		RandomPick:    event.RandomPick,
	}
	return p.publish(ctx, event.EventID, EventTaskFailed, event.UserID, event.FailedAt, payload)
}

// PublishConsequenceExecuted publishes jail.consequence.executed events. Downstream
// simulators consume these; nothing real is executed here.
func (p *EventPublisher) PublishConsequenceExecuted(ctx context.Context, event domain.ConsequenceExecutedEvent) error {
	payload := struct {
		ExecutionID     string         `json:"execution_id"`
		ConsequenceID   string         `json:"consequence_id"`
		ConsequenceType string         `json:"consequence_type"`
		Severity        string         `json:"severity"`
		TaskID          *string        `json:"task_id,omitempty"`
		ExecutedAt      time.Time      `json:"executed_at"`
		Config          map[string]any `json:"config,omitempty"`
	}{
		ExecutionID:     event.ExecutionID,
		ConsequenceID:   event.ConsequenceID,
		ConsequenceType: string(event.ConsequenceType),
		Severity:        string(event.Severity),
		TaskID:          event.TaskID,
		ExecutedAt:      event.ExecutedAt.UTC(),
		Config:          event.Config,
	}
	return p.publish(ctx, event.EventID, EventConsequenceExecuted, event.UserID, event.ExecutedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
