package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arklim/deadline-jail/internal/core/domain"
)

// consequenceDocument is the JSON form of a consequence snapshot stored with each execution.
type consequenceDocument struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Severity       string         `json:"severity"`
	Enabled        bool           `json:"enabled"`
	Config         map[string]any `json:"config,omitempty"`
	LastExecutedAt *time.Time     `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// EncodeSnapshot serialises a consequence snapshot for storage.
func EncodeSnapshot(c domain.Consequence) ([]byte, error) {
	doc := consequenceDocument{
		ID:             c.ID,
		UserID:         c.UserID,
		Type:           string(c.Type),
		Name:           c.Name,
		Description:    c.Description,
		Severity:       string(c.Severity),
		Enabled:        c.Enabled,
		Config:         c.Config,
		LastExecutedAt: c.LastExecutedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode consequence snapshot: %w", err)
	}
	return raw, nil
}

// DecodeSnapshot restores a snapshot written by EncodeSnapshot.
func DecodeSnapshot(raw []byte) (domain.Consequence, error) {
	var doc consequenceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Consequence{}, fmt.Errorf("decode consequence snapshot: %w", err)
	}
	return domain.Consequence{
		ID:             doc.ID,
		UserID:         doc.UserID,
		Type:           domain.ConsequenceType(doc.Type),
		Name:           doc.Name,
		Description:    doc.Description,
		Severity:       domain.Severity(doc.Severity),
		Enabled:        doc.Enabled,
		Config:         doc.Config,
		LastExecutedAt: doc.LastExecutedAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

// EncodeConfig serialises a consequence config map. A nil map is stored as "{}".
func EncodeConfig(cfg map[string]any) ([]byte, error) {
	if cfg == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode consequence config: %w", err)
	}
	return raw, nil
}

// DecodeConfig restores a config map written by EncodeConfig.
func DecodeConfig(raw []byte) (map[string]any, error) {
	cfg := make(map[string]any)
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode consequence config: %w", err)
	}
	return cfg, nil
}
