package domain

import (
	"context"
	"time"
)

// ConfigStore is the configuration-store collaborator. The engine reads active
// configurations, writes back run timestamps, and appends execution and nudge
// records; configuration CRUD lives elsewhere.
type ConfigStore interface {
	ListActive(ctx context.Context) ([]AgentConfiguration, error)
	GetConfiguration(ctx context.Context, id string) (AgentConfiguration, error)
	UpdateRunTimes(ctx context.Context, id string, lastRun time.Time, nextRun time.Time) error
	AppendExecution(ctx context.Context, record ExecutionRecord) error
	CompleteExecution(ctx context.Context, record ExecutionRecord) error
	AppendNudgeLog(ctx context.Context, entry NudgeLogEntry) error
}

// RunGate enforces at-most-one concurrent run per agent configuration. A
// failed acquire means a previous run is still in flight; the caller skips the
// run and logs it, it does not wait.
type RunGate interface {
	TryAcquire(ctx context.Context, configID string) (release func(), acquired bool, err error)
}
