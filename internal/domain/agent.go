package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentConfiguration is a persisted nudge rule. The engine reads it and
// writes back LastRun/NextRun; everything else is owned by the config store.
// The five config blobs are stored as raw JSON and decoded on demand.
type AgentConfiguration struct {
	ID             string          `json:"id"`
	AgentName      string          `json:"agent_name"`
	AgentType      string          `json:"agent_type"`
	DatabaseConfig json.RawMessage `json:"database_config,omitempty"`
	QueryConfig    json.RawMessage `json:"query_config"`
	TemplateConfig json.RawMessage `json:"template_config"`
	ScheduleConfig json.RawMessage `json:"schedule_config"`
	ChannelConfig  json.RawMessage `json:"channel_config"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	LastRun        *time.Time      `json:"last_run,omitempty"`
	NextRun        *time.Time      `json:"next_run,omitempty"`
}

// IsDue reports whether the configuration should run at the given instant.
// A configuration that has never run (nil NextRun) is due immediately.
func (c AgentConfiguration) IsDue(now time.Time) bool {
	if !c.IsActive {
		return false
	}

	return c.NextRun == nil || !c.NextRun.After(now)
}

// DatabaseSpec names the connection the agent queries. Empty means the
// engine's default connection.
type DatabaseSpec struct {
	ConnectionName string `json:"connection_name,omitempty"`
}

// TemplateSpec holds the subject and body templates with {{field}} placeholders.
type TemplateSpec struct {
	Subject string `json:"subject"`
	Body    string `json:"template"`
}

// ChannelSpec describes how rendered nudges leave the engine. RecipientField
// names the row field holding the delivery address for each recipient.
type ChannelSpec struct {
	Channels       []string `json:"channels"`
	RecipientField string   `json:"recipient_field"`
	From           string   `json:"from,omitempty"`
	NudgeType      string   `json:"nudge_type,omitempty"`
}

const (
	ScheduleTypeInterval = "interval"
	ScheduleTypeCron     = "cron"
)

// ScheduleSpec describes the cadence of an agent. Interval schedules run every
// N minutes; cron schedules follow a standard five-field cron expression.
type ScheduleSpec struct {
	Type    string `json:"type"`
	Minutes int    `json:"minutes,omitempty"`
	Cron    string `json:"cron,omitempty"`
}

func (s ScheduleSpec) Validate() error {
	switch s.Type {
	case ScheduleTypeInterval:
		if s.Minutes <= 0 {
			return fmt.Errorf("interval schedule requires minutes > 0, got %d", s.Minutes)
		}
	case ScheduleTypeCron:
		if s.Cron == "" {
			return fmt.Errorf("cron schedule requires a cron expression")
		}
	default:
		return fmt.Errorf("unknown schedule type: %q", s.Type)
	}

	return nil
}

// ParseQuerySpec decodes the agent's query blob. The store is expected to have
// validated the blob already, but the engine re-validates defensively: a
// missing or malformed blob fails compilation instead of crashing a run.
func (c AgentConfiguration) ParseQuerySpec() (QuerySpec, error) {
	var spec QuerySpec

	if len(c.QueryConfig) == 0 {
		return QuerySpec{}, &CompileError{Kind: CompileErrorMalformedSpec, Message: "query config is empty"}
	}

	if err := json.Unmarshal(c.QueryConfig, &spec); err != nil {
		return QuerySpec{}, &CompileError{Kind: CompileErrorMalformedSpec, Message: fmt.Sprintf("failed to decode query config: %v", err)}
	}

	if spec.MainTable == "" {
		return QuerySpec{}, &CompileError{Kind: CompileErrorMalformedSpec, Message: "query config has no main table"}
	}

	return spec, nil
}

func (c AgentConfiguration) ParseTemplateSpec() (TemplateSpec, error) {
	var spec TemplateSpec

	if len(c.TemplateConfig) == 0 {
		return TemplateSpec{}, fmt.Errorf("template config is empty")
	}

	if err := json.Unmarshal(c.TemplateConfig, &spec); err != nil {
		return TemplateSpec{}, fmt.Errorf("failed to decode template config: %w", err)
	}

	if spec.Body == "" {
		return TemplateSpec{}, fmt.Errorf("template config has no body template")
	}

	return spec, nil
}

func (c AgentConfiguration) ParseScheduleSpec() (ScheduleSpec, error) {
	var spec ScheduleSpec

	if len(c.ScheduleConfig) == 0 {
		return ScheduleSpec{}, fmt.Errorf("schedule config is empty")
	}

	if err := json.Unmarshal(c.ScheduleConfig, &spec); err != nil {
		return ScheduleSpec{}, fmt.Errorf("failed to decode schedule config: %w", err)
	}

	if err := spec.Validate(); err != nil {
		return ScheduleSpec{}, err
	}

	return spec, nil
}

func (c AgentConfiguration) ParseChannelSpec() (ChannelSpec, error) {
	var spec ChannelSpec

	if len(c.ChannelConfig) == 0 {
		return ChannelSpec{}, fmt.Errorf("channel config is empty")
	}

	if err := json.Unmarshal(c.ChannelConfig, &spec); err != nil {
		return ChannelSpec{}, fmt.Errorf("failed to decode channel config: %w", err)
	}

	if len(spec.Channels) == 0 {
		return ChannelSpec{}, fmt.Errorf("channel config has no channels")
	}

	if spec.RecipientField == "" {
		return ChannelSpec{}, fmt.Errorf("channel config has no recipient field")
	}

	return spec, nil
}
