package managers

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// pgConfigStore is the configuration-store collaborator backed by PostgreSQL.
// The engine only reads agent_configurations, writes back run timestamps, and
// appends agent_executions and nudges_log rows; configuration CRUD belongs to
// the API service.
type pgConfigStore struct {
	pool *pgxpool.Pool
}

type PGConfigStoreDependencies struct {
	Pool *pgxpool.Pool
}

func NewPGConfigStore(deps PGConfigStoreDependencies) domain.ConfigStore {
	return &pgConfigStore{pool: deps.Pool}
}

const listActiveQuery = `
SELECT id, agent_name, agent_type,
       database_config, query_config, template_config, schedule_config, channel_config,
       is_active, created_at, last_run, next_run
FROM agent_configurations
WHERE is_active = TRUE
ORDER BY id`

func (s *pgConfigStore) ListActive(ctx context.Context) ([]domain.AgentConfiguration, error) {
	rows, err := s.pool.Query(ctx, listActiveQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list active configurations: %w", err)
	}
	defer rows.Close()

	var configs []domain.AgentConfiguration

	for rows.Next() {
		var config domain.AgentConfiguration

		err := rows.Scan(
			&config.ID, &config.AgentName, &config.AgentType,
			&config.DatabaseConfig, &config.QueryConfig, &config.TemplateConfig,
			&config.ScheduleConfig, &config.ChannelConfig,
			&config.IsActive, &config.CreatedAt, &config.LastRun, &config.NextRun,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan configuration row: %w", err)
		}

		configs = append(configs, config)
	}

	return configs, rows.Err()
}

const getConfigurationQuery = `
SELECT id, agent_name, agent_type,
       database_config, query_config, template_config, schedule_config, channel_config,
       is_active, created_at, last_run, next_run
FROM agent_configurations
WHERE id = $1`

func (s *pgConfigStore) GetConfiguration(ctx context.Context, id string) (domain.AgentConfiguration, error) {
	var config domain.AgentConfiguration

	err := s.pool.QueryRow(ctx, getConfigurationQuery, id).Scan(
		&config.ID, &config.AgentName, &config.AgentType,
		&config.DatabaseConfig, &config.QueryConfig, &config.TemplateConfig,
		&config.ScheduleConfig, &config.ChannelConfig,
		&config.IsActive, &config.CreatedAt, &config.LastRun, &config.NextRun,
	)
	if err != nil {
		return domain.AgentConfiguration{}, fmt.Errorf("failed to get configuration %s: %w", id, err)
	}

	return config, nil
}

func (s *pgConfigStore) UpdateRunTimes(ctx context.Context, id string, lastRun time.Time, nextRun time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agent_configurations SET last_run = $2, next_run = $3 WHERE id = $1`,
		id, lastRun, nextRun,
	)
	if err != nil {
		return fmt.Errorf("failed to update run times for %s: %w", id, err)
	}

	return nil
}

func (s *pgConfigStore) AppendExecution(ctx context.Context, record domain.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_executions (id, agent_config_id, started_at, completed_at, status, items_processed, actions_taken, execution_log)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.AgentConfigID, record.StartedAt, record.CompletedAt,
		string(record.Status), record.ItemsProcessed, record.ActionsTaken, record.ExecutionLog,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}

	return nil
}

func (s *pgConfigStore) CompleteExecution(ctx context.Context, record domain.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agent_executions
		 SET completed_at = $2, status = $3, items_processed = $4, actions_taken = $5, execution_log = $6
		 WHERE id = $1`,
		record.ID, record.CompletedAt, string(record.Status),
		record.ItemsProcessed, record.ActionsTaken, record.ExecutionLog,
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution record: %w", err)
	}

	return nil
}

func (s *pgConfigStore) AppendNudgeLog(ctx context.Context, entry domain.NudgeLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nudges_log (id, agent_config_id, execution_id, nudge_type, recipient, message, channel, sent_at, opened_at, action_taken)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.AgentConfigID, entry.ExecutionID, entry.NudgeType,
		entry.Recipient, entry.Message, entry.Channel, entry.SentAt, entry.OpenedAt, entry.ActionTaken,
	)
	if err != nil {
		return fmt.Errorf("failed to append nudge log entry: %w", err)
	}

	return nil
}
