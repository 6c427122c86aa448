package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()
	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg:      config.KafkaSettings{TopicPrefix: "jail"},
		done:     make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "deadline-jail",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func receiveEnvelope(t *testing.T, asyncProducer *fakeAsyncProducer) (*sarama.ProducerMessage, map[string]any) {
	t.Helper()

	select {
	case msg := <-asyncProducer.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return msg, envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
	return nil, nil
}

func TestPublishTaskFailed(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	failedAt := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	consequenceID := "consequence-1"
	event := domain.TaskFailedEvent{
		EventID:       "event-123",
		UserID:        "user-789",
		TaskID:        "task-456",
		Title:         "Finish the report",
		FailedAt:      failedAt,
		ConsequenceID: &consequenceID,
		RandomPick:    true,
	}

	if err := publisher.PublishTaskFailed(context.Background(), event); err != nil {
		t.Fatalf("PublishTaskFailed returned error: %v", err)
	}

	msg, envelope := receiveEnvelope(t, asyncProducer)
	if msg.Topic != "jail.task.failed" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, err := msg.Key.Encode()
	if err != nil || string(key) != event.UserID {
		t.Fatalf("expected message keyed by user id, got %q (%v)", key, err)
	}
	if len(msg.Headers) == 0 || string(msg.Headers[0].Value) != EventTaskFailed {
		t.Fatalf("expected event_type header, got %+v", msg.Headers)
	}

	if got := envelope["event_id"]; got != event.EventID {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["event_type"]; got != EventTaskFailed {
		t.Fatalf("unexpected event_type: %v", got)
	}
	if got := envelope["user_id"]; got != event.UserID {
		t.Fatalf("unexpected user_id: %v", got)
	}
	if got := envelope["timestamp"]; got != failedAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if payload["task_id"] != event.TaskID || payload["consequence_id"] != consequenceID {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["random_pick"] != true {
		t.Fatalf("expected random_pick true, got %v", payload["random_pick"])
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if metadata["service"] != "deadline-jail" || metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
}

func TestPublishConsequenceExecuted(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	executedAt := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	event := domain.ConsequenceExecutedEvent{
		UserID:          "user-789",
		ExecutionID:     "execution-1",
		ConsequenceID:   "consequence-1",
		ConsequenceType: domain.ConsequenceTypeFinancial,
		Severity:        domain.SeverityHigh,
		ExecutedAt:      executedAt,
		Config:          map[string]any{"amount": float64(5), "recipient": "Save the Mosquitoes Foundation"},
	}

	if err := publisher.PublishConsequenceExecuted(context.Background(), event); err != nil {
		t.Fatalf("PublishConsequenceExecuted returned error: %v", err)
	}

	msg, envelope := receiveEnvelope(t, asyncProducer)
	if msg.Topic != "jail.consequence.executed" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if id, _ := envelope["event_id"].(string); id == "" {
		t.Fatalf("expected a generated event id")
	}

	payload := envelope["payload"].(map[string]any)
	if payload["consequence_type"] != "financial" || payload["severity"] != "high" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, present := payload["task_id"]; present {
		t.Fatalf("manual executions must omit task_id")
	}
	cfg := payload["config"].(map[string]any)
	if cfg["amount"] != float64(5) {
		t.Fatalf("config did not round-trip: %v", cfg)
	}
}

func TestPublishHonoursContextCancellation(t *testing.T) {
	asyncProducer := &fakeAsyncProducer{input: make(chan *sarama.ProducerMessage)}
	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg:      config.KafkaSettings{TopicPrefix: "jail"},
	}
	publisher := NewEventPublisher(producer, config.AppSettings{Name: "deadline-jail"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishTaskCompleted(ctx, domain.TaskCompletedEvent{UserID: "user-1", TaskID: "task-1"})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "jail"}}
	if got := producer.TopicName("task.completed"); got != "jail.task.completed" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := producer.TopicName("jail.task.completed"); got != "jail.task.completed" {
		t.Fatalf("prefix should not be doubled, got %s", got)
	}

	bare := &Producer{}
	if got := bare.TopicName("task.completed"); got != "task.completed" {
		t.Fatalf("unexpected topic without prefix %s", got)
	}
}

func TestStubPublisherMasksEmail(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewStubPublisher(zap.New(core))

	err := publisher.PublishUserRegistered(context.Background(), domain.UserRegisteredEvent{
		UserID: "user-1",
		Email:  "ada@example.com",
	})
	if err != nil {
		t.Fatalf("PublishUserRegistered returned error: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != EventUserRegistered {
		t.Fatalf("unexpected event type %v", fields["event_type"])
	}
	if fields["email"] == "ada@example.com" {
		t.Fatalf("email must be masked in logs")
	}
}
