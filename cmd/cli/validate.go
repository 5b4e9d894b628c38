package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nudgekit/nudgekit/internal/domain"
	"github.com/nudgekit/nudgekit/internal/initialization"
)

func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile every active agent configuration and report errors",
		Long:  `Validate decodes and compiles every active agent configuration against the live schema catalog, surfacing compile errors before the scheduler would hit them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context())
		},
	}

	return cmd
}

func runValidate(ctx context.Context) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	container, err := initialization.NewContainer(ctx, config.ContainerConfig())
	if err != nil {
		return err
	}
	defer container.Close()

	catalog, err := container.SchemaProvider.DescribeSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover database schema: %w", err)
	}

	configs, err := container.ConfigStore.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active agents: %w", err)
	}

	failures := 0

	for _, agent := range configs {
		if err := validateAgent(agent, container, catalog); err != nil {
			failures++
			fmt.Printf("FAIL  %s (%s): %v\n", agent.AgentName, agent.ID, err)
			continue
		}

		fmt.Printf("OK    %s (%s)\n", agent.AgentName, agent.ID)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d agent configurations failed validation", failures, len(configs))
	}

	return nil
}

func validateAgent(agent domain.AgentConfiguration, container *initialization.Container, catalog domain.SchemaCatalog) error {
	querySpec, err := agent.ParseQuerySpec()
	if err != nil {
		return err
	}

	if _, err := agent.ParseTemplateSpec(); err != nil {
		return err
	}

	if _, err := agent.ParseScheduleSpec(); err != nil {
		return err
	}

	if _, err := agent.ParseChannelSpec(); err != nil {
		return err
	}

	if _, err := container.Compiler.Compile(querySpec, catalog); err != nil {
		return err
	}

	return nil
}
