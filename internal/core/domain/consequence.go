package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConsequenceType enumerates the simulated punishment channels.
type ConsequenceType string

const (
	ConsequenceTypeSocial    ConsequenceType = "social"
	ConsequenceTypeFinancial ConsequenceType = "financial"
	ConsequenceTypeTech      ConsequenceType = "tech"
	ConsequenceTypeAI        ConsequenceType = "ai"
)

// ParseConsequenceType normalises a user supplied consequence type.
func ParseConsequenceType(raw string) (ConsequenceType, error) {
	switch ConsequenceType(strings.ToLower(strings.TrimSpace(raw))) {
	case ConsequenceTypeSocial:
		return ConsequenceTypeSocial, nil
	case ConsequenceTypeFinancial:
		return ConsequenceTypeFinancial, nil
	case ConsequenceTypeTech:
		return ConsequenceTypeTech, nil
	case ConsequenceTypeAI:
		return ConsequenceTypeAI, nil
	default:
		return "", NewValidationError("type", fmt.Sprintf("unknown consequence type %q", raw))
	}
}

// Severity ranks how unpleasant a consequence is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity normalises a user supplied severity. Empty input defaults to medium.
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SeverityMedium:
		return SeverityMedium, nil
	case SeverityLow:
		return SeverityLow, nil
	case SeverityHigh:
		return SeverityHigh, nil
	default:
		return "", NewValidationError("severity", fmt.Sprintf("unknown severity %q", raw))
	}
}

// Consequence is a user-configured, simulated punitive action.
type Consequence struct {
	ID             string
	UserID         string
	Type           ConsequenceType
	Name           string
	Description    string
	Severity       Severity
	Enabled        bool
	Config         map[string]any
	LastExecutedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns an independent copy for snapshotting. Nested config maps and slices are
// copied too, so edits to the clone never reach the original.
func (c Consequence) Clone() Consequence {
	out := c
	if c.Config != nil {
		out.Config = cloneConfigMap(c.Config)
	}
	if c.LastExecutedAt != nil {
		at := *c.LastExecutedAt
		out.LastExecutedAt = &at
	}
	return out
}

func cloneConfigMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneConfigValue(v)
	}
	return out
}

// cloneConfigValue copies the container shapes JSON decoding produces. Scalars are immutable.
func cloneConfigValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneConfigMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneConfigValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}

// Validate checks the definition, including the type specific configuration payload.
func (c Consequence) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if _, err := ParseConsequenceType(string(c.Type)); err != nil {
		return err
	}
	if _, err := ParseSeverity(string(c.Severity)); err != nil {
		return err
	}
	return ValidateConsequenceConfig(c.Type, c.Config)
}

// ValidateConsequenceConfig enforces the keys each consequence type relies on.
func ValidateConsequenceConfig(kind ConsequenceType, cfg map[string]any) error {
	switch kind {
	case ConsequenceTypeSocial:
		return requireConfigString(cfg, "message")
	case ConsequenceTypeFinancial:
		if err := requireConfigString(cfg, "recipient"); err != nil {
			return err
		}
		amount, ok := configNumber(cfg, "amount")
		if !ok || amount <= 0 {
			return NewValidationError("config.amount", "amount must be a positive number")
		}
		return nil
	case ConsequenceTypeTech:
		if err := requireConfigString(cfg, "deviceName"); err != nil {
			return err
		}
		duration, ok := configNumber(cfg, "duration")
		if !ok || duration <= 0 {
			return NewValidationError("config.duration", "duration must be a positive number of minutes")
		}
		return nil
	case ConsequenceTypeAI:
		if err := requireConfigString(cfg, "alertMessage"); err != nil {
			return err
		}
		email, _ := cfg["contactEmail"].(string)
		if !strings.Contains(strings.TrimSpace(email), "@") {
			return NewValidationError("config.contactEmail", "contactEmail must be an email address")
		}
		return nil
	default:
		return NewValidationError("type", fmt.Sprintf("unknown consequence type %q", kind))
	}
}

func requireConfigString(cfg map[string]any, key string) error {
	value, _ := cfg[key].(string)
	if strings.TrimSpace(value) == "" {
		return NewValidationError("config."+key, key+" is required")
	}
	return nil
}

func configNumber(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// ConsequenceInput carries the fields supplied when registering a consequence.
// A nil Enabled defaults to true.
type ConsequenceInput struct {
	Type        ConsequenceType
	Name        string
	Description string
	Severity    Severity
	Enabled     *bool
	Config      map[string]any
}

// ConsequencePatch is a partial update of a consequence definition.
type ConsequencePatch struct {
	Type        *ConsequenceType
	Name        *string
	Description *string
	Severity    *Severity
	Enabled     *bool
	Config      map[string]any
}

// ConsequenceFilter narrows consequence listings.
type ConsequenceFilter struct {
	Type        ConsequenceType
	EnabledOnly bool
}

// Matches reports whether the consequence passes the filter.
func (f ConsequenceFilter) Matches(c Consequence) bool {
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.EnabledOnly && !c.Enabled {
		return false
	}
	return true
}

// ConsequenceExecution is an append-only record that a consequence was triggered.
type ConsequenceExecution struct {
	ID            string
	UserID        string
	ConsequenceID string
	TaskID        *string
	Snapshot      Consequence
	ExecutedAt    time.Time
}

// DefaultConsequences returns the starter set every new account receives.
func DefaultConsequences(userID string, now time.Time) []Consequence {
	return []Consequence{
		{
			UserID:      userID,
			Type:        ConsequenceTypeSocial,
			Name:        "Tweet my failure",
			Description: "Post a tweet about failing my task",
			Severity:    SeverityMedium,
			Enabled:     true,
			Config: map[string]any{
				"message": "I failed to complete my task. Time to face the consequences.",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			UserID:      userID,
			Type:        ConsequenceTypeFinancial,
			Name:        "Donate $5",
			Description: "Donate $5 to a cause I dislike",
			Severity:    SeverityHigh,
			Enabled:     true,
			Config: map[string]any{
				"amount":    float64(5),
				"recipient": "Save the Mosquitoes Foundation",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
