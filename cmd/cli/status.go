package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nudgekit/nudgekit/internal/initialization"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show active agent configurations and their run times",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}

	return cmd
}

func runStatus(ctx context.Context) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	container, err := initialization.NewContainer(ctx, config.ContainerConfig())
	if err != nil {
		return err
	}
	defer container.Close()

	configs, err := container.ConfigStore.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active agents: %w", err)
	}

	if len(configs) == 0 {
		fmt.Println("No active agent configurations.")
		return nil
	}

	for _, agent := range configs {
		fmt.Printf("%s  %s (%s)\n", agent.ID, agent.AgentName, agent.AgentType)
		fmt.Printf("    last run: %s\n", formatRunTime(agent.LastRun))
		fmt.Printf("    next run: %s\n", formatRunTime(agent.NextRun))
	}

	return nil
}

func formatRunTime(t *time.Time) string {
	if t == nil {
		return "never"
	}

	return t.Format(time.RFC3339)
}
