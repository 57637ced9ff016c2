package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	dockerpkg "github.com/dyluth/thinktank/internal/docker"
	"github.com/dyluth/thinktank/internal/instance"
	"github.com/dyluth/thinktank/internal/printer"
)

var (
	upInstanceName string
	upImage        string
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a local blackboard",
	Long: `Start a local Redis blackboard in Docker.

Creates and starts:
  • Isolated Docker network
  • Redis container (submission history, tank locks and events)

The Redis port is the first free port from 6379 upward. Point thinktank.yml at
the printed URL, or leave the blackboard section out and let history and watch
find the instance by name.`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVarP(&upInstanceName, "name", "n", instance.DefaultName, "Instance name")
	upCmd.Flags().StringVar(&upImage, "image", instance.DefaultRedisImage, "Redis image")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := instance.ValidateName(upInstanceName); err != nil {
		return printer.Error("invalid instance name", err.Error(), nil)
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	printer.Step("Starting instance '%s'...\n", upInstanceName)

	info, err := instance.Up(ctx, cli, upInstanceName, upImage)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return printer.Error(
				fmt.Sprintf("instance '%s' already exists", upInstanceName),
				"An instance with this name is already present.",
				[]string{
					fmt.Sprintf("Use a different name:\n  thinktank up --name %s-2", upInstanceName),
					fmt.Sprintf("Stop the existing instance:\n  thinktank down --name %s", upInstanceName),
				},
			)
		}
		return fmt.Errorf("failed to start instance: %w", err)
	}

	printer.Success("Instance '%s' started\n", info.Name)
	printer.KeyValues(map[string]string{
		"redis url": info.RedisURL,
		"container": dockerpkg.RedisContainerName(info.Name),
	})
	fmt.Fprintf(cmd.OutOrStdout(), "\nAdd to thinktank.yml:\n\nblackboard:\n  redis_url: %s\n  instance: %s\n", info.RedisURL, info.Name)
	return nil
}
