package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/nudgekit/nudgekit/internal/domain"
)

const DefaultTickInterval = time.Minute

// ErrRunInProgress is returned by TriggerNow when the configuration's previous
// run has not finished yet.
var ErrRunInProgress = errors.New("a run for this configuration is still in progress")

// Scheduler drives agent configurations on their cadence. Each tick triggers
// every due configuration at most once; a configuration whose previous run is
// still in flight is skipped with a log entry, never overlapped. Scheduling is
// best-effort: a late tick catches up each due configuration exactly once, not
// once per missed tick.
type Scheduler struct {
	store    domain.ConfigStore
	runner   *Runner
	compiler *Compiler
	cache    *PlanCache
	schemas  domain.SchemaProvider
	gate     domain.RunGate

	tickInterval time.Duration

	wg sync.WaitGroup

	mu         sync.Mutex
	lastTickAt time.Time
	activeRuns int
}

type SchedulerDependencies struct {
	ConfigStore    domain.ConfigStore
	Runner         *Runner
	Compiler       *Compiler
	PlanCache      *PlanCache
	SchemaProvider domain.SchemaProvider
	RunGate        domain.RunGate

	TickInterval time.Duration
}

func NewScheduler(deps SchedulerDependencies) *Scheduler {
	tickInterval := deps.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	return &Scheduler{
		store:        deps.ConfigStore,
		runner:       deps.Runner,
		compiler:     deps.Compiler,
		cache:        deps.PlanCache,
		schemas:      deps.SchemaProvider,
		gate:         deps.RunGate,
		tickInterval: tickInterval,
	}
}

// Start drives Tick on a fixed cadence until the context is cancelled, then
// waits for in-flight runs to settle.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Dur("tick_interval", s.tickInterval).Msg("Agent scheduler started")

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	if err := s.Tick(ctx, time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("Scheduler tick failed")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Agent scheduler stopping, waiting for in-flight runs")
			s.wg.Wait()
			log.Info().Msg("Agent scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("Scheduler tick failed")
			}
		}
	}
}

// Tick triggers every active configuration whose next run is due at the given
// instant. Configurations that have never run (null next run) are due
// immediately.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	s.lastTickAt = now
	s.mu.Unlock()

	configs, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active configurations: %w", err)
	}

	for _, config := range configs {
		if !config.IsDue(now) {
			continue
		}

		s.launch(ctx, config, now)
	}

	return nil
}

// TriggerNow runs one configuration outside its cadence, still honoring the
// per-configuration gate. Used by the ops endpoint for manual runs.
func (s *Scheduler) TriggerNow(ctx context.Context, configID string) (domain.ExecutionRecord, error) {
	config, err := s.store.GetConfiguration(ctx, configID)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	release, acquired, err := s.gate.TryAcquire(ctx, config.ID)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("failed to acquire run gate: %w", err)
	}

	if !acquired {
		return domain.ExecutionRecord{}, ErrRunInProgress
	}
	defer release()

	now := time.Now().UTC()
	record := s.execute(ctx, config, now)
	s.persistRunTimes(ctx, config, now)

	return record, nil
}

type SchedulerStatus struct {
	LastTickAt   time.Time     `json:"last_tick_at"`
	ActiveRuns   int           `json:"active_runs"`
	TickInterval time.Duration `json:"tick_interval"`
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SchedulerStatus{
		LastTickAt:   s.lastTickAt,
		ActiveRuns:   s.activeRuns,
		TickInterval: s.tickInterval,
	}
}

func (s *Scheduler) launch(ctx context.Context, config domain.AgentConfiguration, now time.Time) {
	release, acquired, err := s.gate.TryAcquire(ctx, config.ID)
	if err != nil {
		log.Error().Err(err).Str("agent_id", config.ID).Msg("Failed to acquire run gate")
		return
	}

	if !acquired {
		// Overlapping run attempt: skip and log, never surface an error.
		log.Warn().
			Str("agent_id", config.ID).
			Str("agent_name", config.AgentName).
			Msg("Previous run still in progress, skipping this tick")
		return
	}

	s.mu.Lock()
	s.activeRuns++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		defer func() {
			s.mu.Lock()
			s.activeRuns--
			s.mu.Unlock()
		}()

		s.execute(ctx, config, now)
		s.persistRunTimes(ctx, config, now)
	}()
}

// execute compiles the configuration's specs (through the plan cache) and
// hands the run to the runner. Compile failures produce a failed execution
// record so they are visible without a process log trawl.
func (s *Scheduler) execute(ctx context.Context, config domain.AgentConfiguration, now time.Time) domain.ExecutionRecord {
	querySpec, err := config.ParseQuerySpec()
	if err != nil {
		return s.recordFailure(ctx, config, now, fmt.Sprintf("invalid query config: %v", err))
	}

	template, err := config.ParseTemplateSpec()
	if err != nil {
		return s.recordFailure(ctx, config, now, fmt.Sprintf("invalid template config: %v", err))
	}

	channel, err := config.ParseChannelSpec()
	if err != nil {
		return s.recordFailure(ctx, config, now, fmt.Sprintf("invalid channel config: %v", err))
	}

	plan, ok := s.cache.Get(querySpec.Hash())
	if !ok {
		catalog, err := s.schemas.DescribeSchema(ctx)
		if err != nil {
			return s.recordFailure(ctx, config, now, fmt.Sprintf("failed to describe schema: %v", err))
		}

		plan, err = s.compiler.Compile(querySpec, catalog)
		if err != nil {
			return s.recordFailure(ctx, config, now, fmt.Sprintf("query compilation failed: %v", err))
		}

		s.cache.Put(plan)
	}

	return s.runner.Run(ctx, RunParams{
		Config:   config,
		Plan:     plan,
		Template: template,
		Channel:  channel,
		Now:      now,
	})
}

func (s *Scheduler) recordFailure(ctx context.Context, config domain.AgentConfiguration, now time.Time, reason string) domain.ExecutionRecord {
	log.Error().Str("agent_id", config.ID).Str("reason", reason).Msg("Agent run rejected")

	record := domain.NewExecutionRecord(config.ID, now)
	completedAt := time.Now().UTC()
	record.CompletedAt = &completedAt
	record.Status = domain.ExecutionStatusFailed
	record.ExecutionLog = reason

	if err := s.store.AppendExecution(ctx, record); err != nil {
		log.Error().Err(err).Str("agent_id", config.ID).Msg("Failed to persist rejected execution record")
	}

	if err := s.store.CompleteExecution(ctx, record); err != nil {
		log.Error().Err(err).Str("agent_id", config.ID).Msg("Failed to persist rejected execution record")
	}

	return record
}

// persistRunTimes advances lastRun/nextRun from the tick that triggered the
// run, so a late tick schedules the next run forward instead of replaying
// every missed interval.
func (s *Scheduler) persistRunTimes(ctx context.Context, config domain.AgentConfiguration, now time.Time) {
	schedule, err := config.ParseScheduleSpec()
	if err != nil {
		log.Error().Err(err).Str("agent_id", config.ID).Msg("Invalid schedule config, next run not advanced")
		return
	}

	nextRun, err := NextRun(schedule, now)
	if err != nil {
		log.Error().Err(err).Str("agent_id", config.ID).Msg("Failed to compute next run")
		return
	}

	if err := s.store.UpdateRunTimes(ctx, config.ID, now, nextRun); err != nil {
		log.Error().Err(err).Str("agent_id", config.ID).Msg("Failed to persist run times")
	}
}

// NextRun computes the next due instant after from, per the schedule spec.
func NextRun(schedule domain.ScheduleSpec, from time.Time) (time.Time, error) {
	switch schedule.Type {
	case domain.ScheduleTypeInterval:
		return from.Add(time.Duration(schedule.Minutes) * time.Minute), nil
	case domain.ScheduleTypeCron:
		parsed, err := cron.ParseStandard(schedule.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse cron expression %q: %w", schedule.Cron, err)
		}

		return parsed.Next(from), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule type: %q", schedule.Type)
	}
}
