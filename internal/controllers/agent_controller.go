package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/nudgekit/nudgekit/internal/domain"
	"github.com/nudgekit/nudgekit/internal/engine"
)

// AgentController exposes the engine's operational surface: scheduler status,
// manual runs, and schema refresh. Configuration CRUD lives in the API
// service, not here.
type AgentController struct {
	scheduler *engine.Scheduler
	store     domain.ConfigStore
	schemas   domain.SchemaProvider
	planCache *engine.PlanCache
}

type AgentControllerDependencies struct {
	Scheduler      *engine.Scheduler
	ConfigStore    domain.ConfigStore
	SchemaProvider domain.SchemaProvider
	PlanCache      *engine.PlanCache
}

func NewAgentController(deps AgentControllerDependencies) *AgentController {
	return &AgentController{
		scheduler: deps.Scheduler,
		store:     deps.ConfigStore,
		schemas:   deps.SchemaProvider,
		planCache: deps.PlanCache,
	}
}

func (c *AgentController) SchedulerStatus(ctx fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(c.scheduler.Status())
}

func (c *AgentController) ListAgents(ctx fiber.Ctx) error {
	configs, err := c.store.ListActive(ctx.RequestCtx())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active agents")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list agents")
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"agents": configs,
		"count":  len(configs),
	})
}

// TriggerAgent runs one agent configuration immediately, outside its cadence.
func (c *AgentController) TriggerAgent(ctx fiber.Ctx) error {
	agentID := ctx.Params("agentID")

	record, err := c.scheduler.TriggerNow(ctx.RequestCtx(), agentID)
	if err != nil {
		if errors.Is(err, engine.ErrRunInProgress) {
			return fiber.NewError(fiber.StatusConflict, "A run for this agent is still in progress")
		}

		log.Error().Err(err).Str("agent_id", agentID).Msg("Manual agent run failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to run agent")
	}

	return ctx.Status(fiber.StatusOK).JSON(record)
}

// RefreshSchema reloads the schema catalog and drops cached plans, since they
// embed identifier resolutions from the old catalog.
func (c *AgentController) RefreshSchema(ctx fiber.Ctx) error {
	if err := c.schemas.Refresh(ctx.RequestCtx()); err != nil {
		log.Error().Err(err).Msg("Schema refresh failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to refresh schema")
	}

	c.planCache.Invalidate()

	catalog, err := c.schemas.DescribeSchema(ctx.RequestCtx())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to describe schema")
	}

	return ctx.Status(fiber.StatusOK).JSON(catalog)
}
