package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/nudgekit/nudgekit/internal/domain"
)

const (
	DefaultDispatchWorkers = 4
	DefaultFetchTimeout    = 30 * time.Second
	DefaultDispatchTimeout = 10 * time.Second
)

// Runner executes one agent run: fetch rows through a compiled plan, re-check
// conditions, render messages, and dispatch them. Row processing is fanned out
// to a bounded worker pool since rows are independent; a failure on one row is
// recorded and never aborts the rest.
type Runner struct {
	accessor    domain.DataAccessor
	store       domain.ConfigStore
	dispatchers domain.DispatcherRegistry

	workers         int
	fetchTimeout    time.Duration
	dispatchTimeout time.Duration
}

type RunnerDependencies struct {
	DataAccessor       domain.DataAccessor
	ConfigStore        domain.ConfigStore
	DispatcherRegistry domain.DispatcherRegistry

	DispatchWorkers int
	FetchTimeout    time.Duration
	DispatchTimeout time.Duration
}

func NewRunner(deps RunnerDependencies) *Runner {
	workers := deps.DispatchWorkers
	if workers <= 0 {
		workers = DefaultDispatchWorkers
	}

	fetchTimeout := deps.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	dispatchTimeout := deps.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = DefaultDispatchTimeout
	}

	return &Runner{
		accessor:        deps.DataAccessor,
		store:           deps.ConfigStore,
		dispatchers:     deps.DispatcherRegistry,
		workers:         workers,
		fetchTimeout:    fetchTimeout,
		dispatchTimeout: dispatchTimeout,
	}
}

type RunParams struct {
	Config   domain.AgentConfiguration
	Plan     *domain.CompiledPlan
	Template domain.TemplateSpec
	Channel  domain.ChannelSpec

	// Now is the run's as-of instant. Zero means the current time.
	Now time.Time
}

// Run produces exactly one ExecutionRecord per invocation. Each matched row
// gets at most one dispatch attempt per channel; retries happen only on the
// next scheduled run.
func (r *Runner) Run(ctx context.Context, params RunParams) domain.ExecutionRecord {
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	record := domain.NewExecutionRecord(params.Config.ID, now)

	if err := r.store.AppendExecution(ctx, record); err != nil {
		log.Warn().Err(err).Str("agent_id", params.Config.ID).Msg("Failed to persist execution record at run start")
	}

	runLog := newRunLog()
	evaluator := NewEvaluator(now)

	args, err := BindArgs(params.Plan, now)
	if err != nil {
		return r.fail(ctx, record, runLog, fmt.Sprintf("failed to bind plan parameters: %v", err))
	}

	// The fetch deadline covers only the query and stream drain. Dispatches
	// run afterwards under the run context, so a slow channel cannot eat into
	// the fetch budget. The result set is bounded by the plan's row cap, so
	// buffering it is safe.
	fetchCtx, cancelFetch := context.WithTimeout(ctx, r.fetchTimeout)

	iter, err := r.accessor.ExecutePlan(fetchCtx, params.Plan, args)
	if err != nil {
		cancelFetch()
		return r.fail(ctx, record, runLog, fmt.Sprintf("fetch failed: %v", err))
	}

	var rows []domain.RowResult
	for iter.Next() {
		rows = append(rows, iter.Row())
		runLog.countProcessed()
	}

	streamErr := iter.Err()
	iter.Close()
	cancelFetch()

	if streamErr != nil {
		record.ItemsProcessed = runLog.processed()
		record.ActionsTaken = runLog.actions()
		return r.fail(ctx, record, runLog, fmt.Sprintf("fetch failed mid-stream: %v", streamErr))
	}

	sem := semaphore.NewWeighted(int64(r.workers))
	var wg sync.WaitGroup

	cancelled := false

	for index, row := range rows {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			cancelled = true
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			r.processRow(ctx, processRowParams{
				Evaluator: evaluator,
				Run:       params,
				Row:       row,
				RowIndex:  index,
				Record:    record,
				Log:       runLog,
			})
		}()
	}

	wg.Wait()

	record.ItemsProcessed = runLog.processed()
	record.ActionsTaken = runLog.actions()

	if cancelled {
		return r.fail(ctx, record, runLog, "run cancelled before completion, no further dispatches issued")
	}

	completedAt := time.Now().UTC()
	record.CompletedAt = &completedAt
	record.Status = domain.ExecutionStatusCompleted
	record.ExecutionLog = runLog.String()

	if err := r.store.CompleteExecution(ctx, record); err != nil {
		log.Error().Err(err).Str("execution_id", record.ID).Msg("Failed to persist completed execution record")
	}

	log.Info().
		Str("agent_id", params.Config.ID).
		Str("execution_id", record.ID).
		Int("items_processed", record.ItemsProcessed).
		Int("actions_taken", record.ActionsTaken).
		Msg("Agent run completed")

	return record
}

// fail marks the record terminal with status failed. The store write uses a
// background-derived context so a cancelled run still records its outcome.
func (r *Runner) fail(ctx context.Context, record domain.ExecutionRecord, runLog *runLog, reason string) domain.ExecutionRecord {
	runLog.Add("%s", reason)

	completedAt := time.Now().UTC()
	record.CompletedAt = &completedAt
	record.Status = domain.ExecutionStatusFailed
	record.ExecutionLog = runLog.String()

	storeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	if err := r.store.CompleteExecution(storeCtx, record); err != nil {
		log.Error().Err(err).Str("execution_id", record.ID).Msg("Failed to persist failed execution record")
	}

	log.Warn().
		Str("agent_id", record.AgentConfigID).
		Str("execution_id", record.ID).
		Str("reason", reason).
		Msg("Agent run failed")

	return record
}

type processRowParams struct {
	Evaluator *Evaluator
	Run       RunParams
	Row       domain.RowResult
	RowIndex  int
	Record    domain.ExecutionRecord
	Log       *runLog
}

func (r *Runner) processRow(ctx context.Context, p processRowParams) {
	rowRef := rowReference(p.Row, p.RowIndex)

	matched, err := p.Evaluator.EvaluateProjected(p.Run.Plan.Conditions, p.Row)
	if err != nil {
		p.Log.Add("row %s: condition evaluation failed: %v", rowRef, err)
		return
	}

	if !matched {
		return
	}

	message, err := RenderMessage(p.Run.Template, p.Row)
	if err != nil {
		p.Log.Add("row %s: %v", rowRef, err)
		return
	}

	recipientValue, ok := p.Row.Value(p.Run.Channel.RecipientField)
	if !ok || recipientValue == nil {
		p.Log.Add("row %s: recipient field %q is missing or null", rowRef, p.Run.Channel.RecipientField)
		return
	}

	recipient := formatScalar(recipientValue)

	for _, channel := range p.Run.Channel.Channels {
		if ctx.Err() != nil {
			p.Log.Add("row %s: dispatch on %s skipped, run cancelled", rowRef, channel)
			return
		}

		dispatcher, err := r.dispatchers.Dispatcher(channel)
		if err != nil {
			p.Log.Add("row %s: %v", rowRef, err)
			continue
		}

		dispatchCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
		_, err = dispatcher.Send(dispatchCtx, domain.SendParams{
			Channel:   channel,
			Recipient: recipient,
			Subject:   message.Subject,
			Body:      message.Body,
			From:      p.Run.Channel.From,
		})
		cancel()

		if err != nil {
			p.Log.Add("row %s: dispatch on %s to %s failed: %v", rowRef, channel, recipient, err)
			continue
		}

		p.Log.countAction()

		entry := domain.NudgeLogEntry{
			ID:            uuid.NewString(),
			AgentConfigID: p.Run.Config.ID,
			ExecutionID:   p.Record.ID,
			NudgeType:     p.Run.Channel.NudgeType,
			Recipient:     recipient,
			Message:       message.Body,
			Channel:       channel,
			SentAt:        time.Now().UTC(),
		}

		if err := r.store.AppendNudgeLog(ctx, entry); err != nil {
			p.Log.Add("row %s: dispatched on %s but failed to write nudge log: %v", rowRef, channel, err)
		}
	}
}

// rowReference builds a diagnostic identifier for log lines: the row's id
// column when present, the stream index otherwise.
func rowReference(row domain.RowResult, index int) string {
	if id, ok := row.Value("id"); ok && id != nil {
		return fmt.Sprintf("id=%s", formatScalar(id))
	}

	return fmt.Sprintf("#%d", index)
}

// runLog collects per-run diagnostics and counters from concurrent row
// workers.
type runLog struct {
	mu             sync.Mutex
	lines          []string
	itemsProcessed int
	actionsTaken   int
}

func newRunLog() *runLog {
	return &runLog{}
}

func (l *runLog) Add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *runLog) countProcessed() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.itemsProcessed++
}

func (l *runLog) countAction() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.actionsTaken++
}

func (l *runLog) processed() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.itemsProcessed
}

func (l *runLog) actions() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.actionsTaken
}

func (l *runLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return strings.Join(l.lines, "\n")
}
