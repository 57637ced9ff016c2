package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	dockerpkg "github.com/dyluth/thinktank/internal/docker"
	"github.com/dyluth/thinktank/internal/instance"
	"github.com/dyluth/thinktank/internal/printer"
)

var downInstanceName string

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove a local blackboard",
	Long: `Stop and remove the containers and network of a local blackboard.

Recorded submissions are lost with the Redis container.`,
	Args: cobra.NoArgs,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringVarP(&downInstanceName, "name", "n", instance.DefaultName, "Instance name")
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	removed, err := instance.Down(ctx, cli, downInstanceName)
	if err != nil {
		return fmt.Errorf("failed to stop instance: %w", err)
	}
	if len(removed) == 0 {
		return printer.Error(
			fmt.Sprintf("instance '%s' not found", downInstanceName),
			"No containers or networks carry this instance name.",
			[]string{"Start one:\n  thinktank up"},
		)
	}

	for _, name := range removed {
		printer.Step("Removed %s\n", name)
	}
	printer.Success("Instance '%s' removed\n", downInstanceName)
	return nil
}
