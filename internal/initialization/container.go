package initialization

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/nudgekit/nudgekit/internal/controllers"
	"github.com/nudgekit/nudgekit/internal/dispatch"
	"github.com/nudgekit/nudgekit/internal/domain"
	"github.com/nudgekit/nudgekit/internal/engine"
	"github.com/nudgekit/nudgekit/internal/managers"
)

// Config carries everything the container needs to assemble the engine.
type Config struct {
	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	ResendAPIKey string
	EmailFrom    string
	SlackToken   string

	TickInterval    time.Duration
	DispatchWorkers int
	FetchTimeout    time.Duration
	DispatchTimeout time.Duration
	RowLimit        int
}

// Container wires the engine's components: storage, schema discovery, plan
// compilation, dispatch, and scheduling.
type Container struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client

	ConfigStore    domain.ConfigStore
	SchemaProvider domain.SchemaProvider
	DataAccessor   domain.DataAccessor
	RunGate        domain.RunGate
	Dispatchers    *dispatch.Registry

	Compiler  *engine.Compiler
	PlanCache *engine.PlanCache
	Runner    *engine.Runner
	Scheduler *engine.Scheduler

	AgentController *controllers.AgentController
}

func NewContainer(ctx context.Context, config Config) (*Container, error) {
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	pool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	container := &Container{Pool: pool}

	container.ConfigStore = managers.NewPGConfigStore(managers.PGConfigStoreDependencies{Pool: pool})
	container.SchemaProvider = managers.NewPGSchemaProvider(managers.PGSchemaProviderDependencies{Pool: pool})
	container.DataAccessor = managers.NewPGDataAccessor(managers.PGDataAccessorDependencies{Pool: pool})

	container.RunGate = buildRunGate(container, config)
	container.Dispatchers = buildDispatchers(config)

	container.Compiler = engine.NewCompiler(engine.CompilerDependencies{RowLimit: config.RowLimit})
	container.PlanCache = engine.NewPlanCache()

	container.Runner = engine.NewRunner(engine.RunnerDependencies{
		DataAccessor:       container.DataAccessor,
		ConfigStore:        container.ConfigStore,
		DispatcherRegistry: container.Dispatchers,
		DispatchWorkers:    config.DispatchWorkers,
		FetchTimeout:       config.FetchTimeout,
		DispatchTimeout:    config.DispatchTimeout,
	})

	container.Scheduler = engine.NewScheduler(engine.SchedulerDependencies{
		ConfigStore:    container.ConfigStore,
		Runner:         container.Runner,
		Compiler:       container.Compiler,
		PlanCache:      container.PlanCache,
		SchemaProvider: container.SchemaProvider,
		RunGate:        container.RunGate,
		TickInterval:   config.TickInterval,
	})

	container.AgentController = controllers.NewAgentController(controllers.AgentControllerDependencies{
		Scheduler:      container.Scheduler,
		ConfigStore:    container.ConfigStore,
		SchemaProvider: container.SchemaProvider,
		PlanCache:      container.PlanCache,
	})

	return container, nil
}

func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}

	c.Pool.Close()
}

// buildRunGate prefers the redis-backed gate when redis is configured, so the
// per-configuration run lock holds across replicas. Without redis, the
// in-process gate covers a single instance.
func buildRunGate(container *Container, config Config) domain.RunGate {
	if config.RedisAddr == "" {
		log.Info().Msg("Redis not configured, using in-process run gate")
		return managers.NewMemoryRunGate()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
	})

	container.Redis = client

	return managers.NewRedisRunGate(managers.RedisRunGateDependencies{Client: client})
}

// buildDispatchers registers a dispatcher per supported channel. Channels
// without a configured provider fall back to the log dispatcher so runs stay
// observable in development.
func buildDispatchers(config Config) *dispatch.Registry {
	registry := dispatch.NewRegistry()

	logSink := dispatch.NewLogDispatcher()

	if config.ResendAPIKey != "" {
		registry.Register(dispatch.ChannelEmail, dispatch.NewEmailDispatcher(dispatch.EmailDispatcherDependencies{
			APIKey:      config.ResendAPIKey,
			DefaultFrom: config.EmailFrom,
		}))
	} else {
		log.Info().Msg("Resend not configured, email nudges will be logged only")
		registry.Register(dispatch.ChannelEmail, logSink)
	}

	if config.SlackToken != "" {
		registry.Register(dispatch.ChannelSlack, dispatch.NewSlackDispatcher(dispatch.SlackDispatcherDependencies{
			Token: config.SlackToken,
		}))
	} else {
		registry.Register(dispatch.ChannelSlack, logSink)
	}

	registry.Register(dispatch.ChannelSMS, logSink)
	registry.Register(dispatch.ChannelPush, logSink)

	return registry
}
