package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nudgekit/nudgekit/internal/initialization"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Run one agent configuration immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args[0])
		},
	}

	return cmd
}

func runOnce(ctx context.Context, agentID string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	container, err := initialization.NewContainer(ctx, config.ContainerConfig())
	if err != nil {
		return err
	}
	defer container.Close()

	record, err := container.Scheduler.TriggerNow(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to run agent %s: %w", agentID, err)
	}

	fmt.Printf("execution %s: status=%s items_processed=%d actions_taken=%d\n",
		record.ID, record.Status, record.ItemsProcessed, record.ActionsTaken)

	if record.ExecutionLog != "" {
		fmt.Println(record.ExecutionLog)
	}

	return nil
}
