package domain

import (
	"time"

	"github.com/rs/xid"
)

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionRecord tracks one run of one agent configuration. It is created at
// run start with status running, mutated only by the runner, and terminal once
// CompletedAt is set.
type ExecutionRecord struct {
	ID             string          `json:"id"`
	AgentConfigID  string          `json:"agent_config_id"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Status         ExecutionStatus `json:"status"`
	ItemsProcessed int             `json:"items_processed"`
	ActionsTaken   int             `json:"actions_taken"`
	ExecutionLog   string          `json:"execution_log,omitempty"`
}

func NewExecutionRecord(agentConfigID string, startedAt time.Time) ExecutionRecord {
	return ExecutionRecord{
		ID:            xid.New().String(),
		AgentConfigID: agentConfigID,
		StartedAt:     startedAt,
		Status:        ExecutionStatusRunning,
	}
}

// NudgeLogEntry records one dispatched message to one recipient. The engine
// writes it once per successful dispatch; OpenedAt and ActionTaken are filled
// in later by the open-tracking collaborator.
type NudgeLogEntry struct {
	ID            string     `json:"id"`
	AgentConfigID string     `json:"agent_config_id"`
	ExecutionID   string     `json:"execution_id"`
	NudgeType     string     `json:"nudge_type"`
	Recipient     string     `json:"recipient"`
	Message       string     `json:"message"`
	Channel       string     `json:"channel"`
	SentAt        time.Time  `json:"sent_at"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
	ActionTaken   bool       `json:"action_taken"`
}
