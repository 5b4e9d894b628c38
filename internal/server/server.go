package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/nudgekit/nudgekit/internal/controllers"
	"github.com/nudgekit/nudgekit/internal/version"
)

type HTTPServerDependencies struct {
	AgentController *controllers.AgentController
}

// NewHTTPServer builds the engine's operational HTTP surface. It carries no
// configuration CRUD; that API lives in a separate service.
func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "nudgekit-engine",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "nudgekit-engine",
			"version":   version.String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.Get("/scheduler/status", deps.AgentController.SchedulerStatus)
	router.Get("/agents", deps.AgentController.ListAgents)
	router.Post("/agents/:agentID/run", deps.AgentController.TriggerAgent)
	router.Post("/schema/refresh", deps.AgentController.RefreshSchema)

	return router
}
