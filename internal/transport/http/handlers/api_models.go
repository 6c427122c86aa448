package handlers

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/deadline-jail/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of each dependency probed by /readyz.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// UserSummary describes the account view returned by the API.
type UserSummary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserSummary(user domain.User) UserSummary {
	return UserSummary{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}
}

// CredentialsRequest is shared by the register and login endpoints.
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is returned after registration or login.
type SessionResponse struct {
	User        UserSummary `json:"user"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

func newSessionResponse(session domain.Session) SessionResponse {
	return SessionResponse{
		User:        newUserSummary(session.User),
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
	}
}

// DurationPayload is the time estimate attached to a task.
type DurationPayload struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// TaskCreateRequest defines the payload for POST /tasks.
type TaskCreateRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Deadline      *time.Time      `json:"deadline"`
	Duration      DurationPayload `json:"duration"`
	ConsequenceID *string         `json:"consequence_id"`
}

func (r TaskCreateRequest) toInput() domain.TaskInput {
	return domain.TaskInput{
		Title:         r.Title,
		Description:   r.Description,
		Deadline:      r.Deadline,
		Duration:      domain.Duration{Hours: r.Duration.Hours, Minutes: r.Duration.Minutes},
		ConsequenceID: r.ConsequenceID,
	}
}

// DurationPatch allows hours and minutes to be edited independently.
type DurationPatch struct {
	Hours   *int `json:"hours"`
	Minutes *int `json:"minutes"`
}

// NullableString distinguishes an absent field from an explicit JSON null.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON records that the field was present. A null leaves Value nil.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.Value = &value
	return nil
}

// TaskPatchRequest defines the payload for PATCH and PUT /tasks/:id. Absent fields are kept;
// consequence_id: null clears the assignment.
type TaskPatchRequest struct {
	Title         *string        `json:"title"`
	Description   *string        `json:"description"`
	Deadline      *time.Time     `json:"deadline"`
	Duration      *DurationPatch `json:"duration"`
	ConsequenceID NullableString `json:"consequence_id"`
	Status        *string        `json:"status"`
}

func (r TaskPatchRequest) toPatch() (domain.TaskPatch, error) {
	patch := domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Deadline:    r.Deadline,
	}
	if r.Duration != nil {
		patch.DurationHours = r.Duration.Hours
		patch.DurationMinutes = r.Duration.Minutes
	}
	if r.ConsequenceID.Set {
		if r.ConsequenceID.Value == nil || *r.ConsequenceID.Value == "" {
			patch.ClearConsequence = true
		} else {
			patch.ConsequenceID = r.ConsequenceID.Value
		}
	}
	if r.Status != nil {
		status, err := domain.ParseTaskStatus(*r.Status)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.Status = &status
	}
	return patch, nil
}

// TaskResponse is the API view of a task.
type TaskResponse struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Deadline      time.Time         `json:"deadline"`
	Duration      DurationPayload   `json:"duration"`
	ConsequenceID *string           `json:"consequence_id"`
	Status        domain.TaskStatus `json:"status"`
	Overdue       bool              `json:"overdue"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	FailedAt      *time.Time        `json:"failed_at,omitempty"`
}

func newTaskResponse(view domain.TaskView) TaskResponse {
	return TaskResponse{
		ID:            view.ID,
		Title:         view.Title,
		Description:   view.Description,
		Deadline:      view.Deadline,
		Duration:      DurationPayload{Hours: view.Duration.Hours, Minutes: view.Duration.Minutes},
		ConsequenceID: view.ConsequenceID,
		Status:        view.Status,
		Overdue:       view.Overdue,
		CreatedAt:     view.CreatedAt,
		CompletedAt:   view.CompletedAt,
		FailedAt:      view.FailedAt,
	}
}

// TaskFailureResponse is returned by POST /tasks/:id/fail.
type TaskFailureResponse struct {
	Task        TaskResponse         `json:"task"`
	Consequence *ConsequenceResponse `json:"consequence"`
	Random      bool                 `json:"random"`
}

// ConsequenceRequest defines the payload for POST /consequences.
type ConsequenceRequest struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Enabled     *bool          `json:"enabled"`
	Config      map[string]any `json:"config"`
}

func (r ConsequenceRequest) toInput() domain.ConsequenceInput {
	return domain.ConsequenceInput{
		Type:        domain.ConsequenceType(r.Type),
		Name:        r.Name,
		Description: r.Description,
		Severity:    domain.Severity(r.Severity),
		Enabled:     r.Enabled,
		Config:      r.Config,
	}
}

// ConsequencePatchRequest defines the payload for PATCH and PUT /consequences/:id.
type ConsequencePatchRequest struct {
	Type        *string        `json:"type"`
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Severity    *string        `json:"severity"`
	Enabled     *bool          `json:"enabled"`
	Config      map[string]any `json:"config"`
}

func (r ConsequencePatchRequest) toPatch() domain.ConsequencePatch {
	patch := domain.ConsequencePatch{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     r.Enabled,
		Config:      r.Config,
	}
	if r.Type != nil {
		kind := domain.ConsequenceType(*r.Type)
		patch.Type = &kind
	}
	if r.Severity != nil {
		severity := domain.Severity(*r.Severity)
		patch.Severity = &severity
	}
	return patch
}

// ConsequenceResponse is the API view of a consequence definition.
type ConsequenceResponse struct {
	ID             string                 `json:"id"`
	Type           domain.ConsequenceType `json:"type"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Severity       domain.Severity        `json:"severity"`
	Enabled        bool                   `json:"enabled"`
	Config         map[string]any         `json:"config"`
	LastExecutedAt *time.Time             `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func newConsequenceResponse(c domain.Consequence) ConsequenceResponse {
	config := c.Config
	if config == nil {
		config = map[string]any{}
	}
	return ConsequenceResponse{
		ID:             c.ID,
		Type:           c.Type,
		Name:           c.Name,
		Description:    c.Description,
		Severity:       c.Severity,
		Enabled:        c.Enabled,
		Config:         config,
		LastExecutedAt: c.LastExecutedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func newConsequencePtr(c *domain.Consequence) *ConsequenceResponse {
	if c == nil {
		return nil
	}
	resp := newConsequenceResponse(*c)
	return &resp
}

// ExecutionResponse is one entry of the consequence execution log.
type ExecutionResponse struct {
	ID            string              `json:"id"`
	ConsequenceID string              `json:"consequence_id"`
	TaskID        *string             `json:"task_id,omitempty"`
	Consequence   ConsequenceResponse `json:"consequence"`
	ExecutedAt    time.Time           `json:"executed_at"`
}

func newExecutionResponse(execution domain.ConsequenceExecution) ExecutionResponse {
	return ExecutionResponse{
		ID:            execution.ID,
		ConsequenceID: execution.ConsequenceID,
		TaskID:        execution.TaskID,
		Consequence:   newConsequenceResponse(execution.Snapshot),
		ExecutedAt:    execution.ExecutedAt,
	}
}

// TimelineEntry is one row of GET /history.
type TimelineEntry struct {
	Kind      domain.TimelineKind `json:"kind"`
	At        time.Time           `json:"at"`
	Task      *TaskResponse       `json:"task,omitempty"`
	Execution *ExecutionResponse  `json:"execution,omitempty"`
}

func newTimelineEntry(event domain.TimelineEvent, now time.Time) TimelineEntry {
	entry := TimelineEntry{Kind: event.Kind, At: event.At}
	if event.Task != nil {
		task := newTaskResponse(domain.NewTaskView(*event.Task, now))
		entry.Task = &task
	}
	if event.Execution != nil {
		execution := newExecutionResponse(*event.Execution)
		entry.Execution = &execution
	}
	return entry
}

// StatsResponse summarises the dashboard counters.
type StatsResponse struct {
	Active     int `json:"active"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Overdue    int `json:"overdue"`
	Executions int `json:"executions"`
}
