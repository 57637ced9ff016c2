package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/thinktank/internal/config"
	dockerpkg "github.com/dyluth/thinktank/internal/docker"
	"github.com/dyluth/thinktank/internal/instance"
	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

// openBoard connects to the blackboard named by thinktank.yml. Without a
// configured blackboard it falls back to the local instance started by
// 'thinktank up', named by instanceFlag or "default".
func openBoard(ctx context.Context, instanceFlag string) (*blackboard.Client, error) {
	redisURL, instanceName, err := boardLocation(ctx, instanceFlag)
	if err != nil {
		return nil, err
	}

	board, err := blackboard.NewClientFromURL(redisURL, instanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create blackboard client: %w", err)
	}

	if err := board.Ping(ctx); err != nil {
		board.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"instance": instanceName},
			[]string{
				fmt.Sprintf("Check the container:\n  docker logs %s", dockerpkg.RedisContainerName(instanceName)),
				fmt.Sprintf("Restart if needed:\n  thinktank down --name %s\n  thinktank up --name %s", instanceName, instanceName),
			},
		)
	}
	return board, nil
}

func boardLocation(ctx context.Context, instanceFlag string) (string, string, error) {
	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err := loadConfig()
		if err != nil {
			return "", "", err
		}
		if cfg.Blackboard != nil && instanceFlag == "" {
			return cfg.Blackboard.RedisURL, cfg.Blackboard.Instance, nil
		}
	}
	if url := os.Getenv(config.EnvRedisURL); url != "" && instanceFlag == "" {
		return url, instance.DefaultName, nil
	}

	name := instanceFlag
	if name == "" {
		name = instance.DefaultName
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return "", "", err
	}
	defer cli.Close()

	info, err := instance.Lookup(ctx, cli, name)
	if err != nil {
		return "", "", printer.Error(
			"no blackboard found",
			fmt.Sprintf("No blackboard is configured and no local instance is usable: %v", err),
			[]string{
				"Start a local blackboard:\n  thinktank up",
				fmt.Sprintf("Add a blackboard section to %s", configPath),
			},
		)
	}
	if info.Status != instance.StatusRunning {
		return "", "", printer.Error(
			fmt.Sprintf("instance '%s' is not running", name),
			fmt.Sprintf("Status: %s", info.Status),
			[]string{fmt.Sprintf("Restart the instance:\n  thinktank down --name %s\n  thinktank up --name %s", name, name)},
		)
	}
	return info.RedisURL, name, nil
}
