package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nudgekit/nudgekit/internal/initialization"
	"github.com/nudgekit/nudgekit/internal/server"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the agent engine",
		Long:  `Start the agent engine: the scheduler drives every active agent configuration on its cadence and the HTTP server exposes health, status, and manual-run endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}

	return cmd
}

func runStart() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	container, err := initialization.NewContainer(ctx, config.ContainerConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine container")
	}
	defer container.Close()

	// Warm the schema catalog up front so the first due agent does not pay
	// the discovery round trip and bad connectivity surfaces at startup.
	if err := container.SchemaProvider.Refresh(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to discover database schema")
	}

	go func() {
		if err := container.Scheduler.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduler stopped with error")
		}
	}()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		AgentController: container.AgentController,
	})

	log.Info().Str("address", config.HTTPAddress).Msg("Starting agent engine")

	if err := app.Listen(config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Agent engine stopped")

	return nil
}
