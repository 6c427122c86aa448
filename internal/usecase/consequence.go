package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/logger"
	"github.com/arklim/deadline-jail/internal/repository"
)

type globalRandomizer struct{}

func (globalRandomizer) IntN(n int) int {
	return rand.IntN(n)
}

// ConsequenceService manages a user's consequence definitions and the execution log.
type ConsequenceService struct {
	consequences port.ConsequenceRepository
	executions   port.ExecutionLog
	random       port.Randomizer
	events       port.EventPublisher
	logger       *zap.Logger
	now          func() time.Time
}

// NewConsequenceService constructs a ConsequenceService.
func NewConsequenceService(consequences port.ConsequenceRepository, executions port.ExecutionLog, logger *zap.Logger) *ConsequenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsequenceService{
		consequences: consequences,
		executions:   executions,
		random:       globalRandomizer{},
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithRandomizer replaces the random source used by SelectRandom.
func (s *ConsequenceService) WithRandomizer(random port.Randomizer) *ConsequenceService {
	if random != nil {
		s.random = random
	}
	return s
}

// WithEventPublisher publishes a ConsequenceExecuted event for every recorded execution.
func (s *ConsequenceService) WithEventPublisher(events port.EventPublisher) *ConsequenceService {
	s.events = events
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ConsequenceService) WithClock(clock func() time.Time) *ConsequenceService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// AddConsequence validates and stores a new definition owned by userID.
func (s *ConsequenceService) AddConsequence(ctx context.Context, userID string, input domain.ConsequenceInput) (domain.Consequence, error) {
	kind, err := domain.ParseConsequenceType(string(input.Type))
	if err != nil {
		return domain.Consequence{}, err
	}
	severity, err := domain.ParseSeverity(string(input.Severity))
	if err != nil {
		return domain.Consequence{}, err
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	now := s.now()
	consequence := domain.Consequence{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        kind,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Severity:    severity,
		Enabled:     enabled,
		Config:      input.Config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if consequence.Config == nil {
		consequence.Config = map[string]any{}
	}
	if err := consequence.Validate(); err != nil {
		return domain.Consequence{}, err
	}

	if err := s.consequences.Create(ctx, consequence); err != nil {
		return domain.Consequence{}, fmt.Errorf("create consequence: %w", err)
	}
	return consequence, nil
}

// GetConsequence returns the definition when it exists and belongs to userID.
func (s *ConsequenceService) GetConsequence(ctx context.Context, userID, id string) (domain.Consequence, error) {
	consequence, err := s.consequences.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Consequence{}, ErrConsequenceNotFound
		}
		return domain.Consequence{}, fmt.Errorf("get consequence: %w", err)
	}
	if consequence.UserID != userID {
		return domain.Consequence{}, ErrConsequenceNotFound
	}
	return *consequence, nil
}

// ListConsequences returns the user's definitions in creation order.
func (s *ConsequenceService) ListConsequences(ctx context.Context, userID string, filter domain.ConsequenceFilter) ([]domain.Consequence, error) {
	items, err := s.consequences.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list consequences: %w", err)
	}
	return items, nil
}

// ListByType returns the enabled definitions of one type.
func (s *ConsequenceService) ListByType(ctx context.Context, userID string, kind domain.ConsequenceType) ([]domain.Consequence, error) {
	return s.ListConsequences(ctx, userID, domain.ConsequenceFilter{Type: kind, EnabledOnly: true})
}

// UpdateConsequence applies a partial update. Config, when present, replaces the stored map.
func (s *ConsequenceService) UpdateConsequence(ctx context.Context, userID, id string, patch domain.ConsequencePatch) (domain.Consequence, error) {
	consequence, err := s.GetConsequence(ctx, userID, id)
	if err != nil {
		return domain.Consequence{}, err
	}

	if patch.Type != nil {
		kind, err := domain.ParseConsequenceType(string(*patch.Type))
		if err != nil {
			return domain.Consequence{}, err
		}
		consequence.Type = kind
	}
	if patch.Name != nil {
		consequence.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		consequence.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Severity != nil {
		severity, err := domain.ParseSeverity(string(*patch.Severity))
		if err != nil {
			return domain.Consequence{}, err
		}
		consequence.Severity = severity
	}
	if patch.Enabled != nil {
		consequence.Enabled = *patch.Enabled
	}
	if patch.Config != nil {
		consequence.Config = patch.Config
	}
	if err := consequence.Validate(); err != nil {
		return domain.Consequence{}, err
	}

	consequence.UpdatedAt = s.now()
	if err := s.consequences.Update(ctx, consequence); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Consequence{}, ErrConsequenceNotFound
		}
		return domain.Consequence{}, fmt.Errorf("update consequence: %w", err)
	}
	return consequence, nil
}

// DeleteConsequence removes the definition. Absent ids succeed. Past executions keep their snapshot.
func (s *ConsequenceService) DeleteConsequence(ctx context.Context, userID, id string) error {
	if err := s.consequences.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete consequence: %w", err)
	}
	return nil
}

// SelectRandom picks one enabled definition uniformly. It returns nil when the user has none.
func (s *ConsequenceService) SelectRandom(ctx context.Context, userID string) (*domain.Consequence, error) {
	enabled, err := s.consequences.ListByUser(ctx, userID, domain.ConsequenceFilter{EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list enabled consequences: %w", err)
	}
	if len(enabled) == 0 {
		return nil, nil
	}
	picked := enabled[s.random.IntN(len(enabled))]
	return &picked, nil
}

// RecordExecution appends a snapshot of the consequence to the execution log and stamps
// LastExecutedAt. An unknown or foreign id is ignored and yields a nil execution.
func (s *ConsequenceService) RecordExecution(ctx context.Context, userID, consequenceID string, taskID *string) (*domain.ConsequenceExecution, error) {
	log := logger.WithContext(ctx).With(zap.String("user_id", userID), zap.String("consequence_id", consequenceID))

	consequence, err := s.GetConsequence(ctx, userID, consequenceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Debug("skip execution of unknown consequence")
			return nil, nil
		}
		return nil, err
	}

	now := s.now()
	snapshot := consequence.Clone()
	snapshot.LastExecutedAt = &now
	execution := domain.ConsequenceExecution{
		ID:            uuid.NewString(),
		UserID:        userID,
		ConsequenceID: consequence.ID,
		TaskID:        taskID,
		Snapshot:      snapshot,
		ExecutedAt:    now,
	}

	if err := s.executions.Append(ctx, execution); err != nil {
		return nil, fmt.Errorf("append execution: %w", err)
	}
	if err := s.consequences.MarkExecuted(ctx, consequence.ID, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("mark consequence executed: %w", err)
	}

	log.Info("consequence executed",
		zap.String("type", string(consequence.Type)),
		zap.String("severity", string(consequence.Severity)),
	)

	if s.events != nil {
		event := domain.ConsequenceExecutedEvent{
			EventID:         uuid.NewString(),
			UserID:          userID,
			ExecutionID:     execution.ID,
			ConsequenceID:   consequence.ID,
			ConsequenceType: consequence.Type,
			Severity:        consequence.Severity,
			TaskID:          taskID,
			ExecutedAt:      now,
			Config:          snapshot.Config,
		}
		if err := s.events.PublishConsequenceExecuted(ctx, event); err != nil {
			log.Warn("publish consequence executed event failed", zap.Error(err))
		}
	}

	return &execution, nil
}

// ListExecutions returns the user's execution log, newest first.
func (s *ConsequenceService) ListExecutions(ctx context.Context, userID string) ([]domain.ConsequenceExecution, error) {
	items, err := s.executions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return items, nil
}

// enabledOwned returns the consequence only when it exists, belongs to userID and is enabled.
func (s *ConsequenceService) enabledOwned(ctx context.Context, userID, id string) (*domain.Consequence, error) {
	consequence, err := s.GetConsequence(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !consequence.Enabled {
		return nil, ErrConsequenceNotFound
	}
	return &consequence, nil
}
