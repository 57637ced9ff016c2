package instance

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	dockerpkg "github.com/dyluth/thinktank/internal/docker"
)

// DefaultRedisImage is the blackboard Redis image.
const DefaultRedisImage = "redis:7-alpine"

const stopTimeoutSeconds = 10

// Up creates the instance network and starts its Redis container on the next
// free host port. On failure, anything created so far is removed.
func Up(ctx context.Context, cli *client.Client, instanceName, image string) (*Info, error) {
	if err := ValidateName(instanceName); err != nil {
		return nil, err
	}
	if image == "" {
		image = DefaultRedisImage
	}

	taken, err := CheckNameCollision(ctx, cli, instanceName)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("instance '%s' already exists", instanceName)
	}

	if err := ensureImage(ctx, cli, image); err != nil {
		return nil, err
	}

	port, err := FindNextAvailablePort(ctx, cli)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate Redis port: %w", err)
	}

	runID := dockerpkg.GenerateRunID()
	if err := createRedis(ctx, cli, instanceName, runID, image, port); err != nil {
		if _, rbErr := Down(context.WithoutCancel(ctx), cli, instanceName); rbErr != nil {
			return nil, fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return nil, err
	}

	return &Info{Name: instanceName, Status: StatusRunning, RedisPort: port, RedisURL: RedisURL(port)}, nil
}

func createRedis(ctx context.Context, cli *client.Client, instanceName, runID, image string, port int) error {
	networkName := dockerpkg.NetworkName(instanceName)
	if _, err := cli.NetworkCreate(ctx, networkName, types.NetworkCreate{
		Driver: "bridge",
		Labels: dockerpkg.BuildLabels(instanceName, runID, ""),
	}); err != nil {
		return fmt.Errorf("failed to create network '%s': %w", networkName, err)
	}

	labels := dockerpkg.BuildLabels(instanceName, runID, dockerpkg.ComponentRedis)
	labels[dockerpkg.LabelRedisPort] = strconv.Itoa(port)

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  image,
		Labels: labels,
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(networkName),
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: strconv.Itoa(port)},
			},
		},
	}, nil, nil, dockerpkg.RedisContainerName(instanceName))
	if err != nil {
		return fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start Redis container: %w", err)
	}
	return nil
}

// Down stops and removes every container and network of the instance and
// returns the names removed.
func Down(ctx context.Context, cli *client.Client, instanceName string) ([]string, error) {
	containers, err := listInstanceContainers(ctx, cli, instanceName, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var removed []string
	timeout := stopTimeoutSeconds
	for _, c := range containers {
		// Already-stopped containers fail to stop; removal is forced anyway.
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", containerName(c), err)
		}
		removed = append(removed, containerName(c))
	}

	networks, err := cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName))),
	})
	if err != nil {
		return removed, fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range networks {
		if err := cli.NetworkRemove(ctx, n.ID); err != nil {
			return removed, fmt.Errorf("failed to remove network %s: %w", n.Name, err)
		}
		removed = append(removed, n.Name)
	}

	return removed, nil
}

// Lookup reports the status and Redis port of an existing instance.
func Lookup(ctx context.Context, cli *client.Client, instanceName string) (*Info, error) {
	containers, err := listInstanceContainers(ctx, cli, instanceName, dockerpkg.ComponentRedis)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return nil, fmt.Errorf("instance '%s' not found", instanceName)
	}

	portStr, ok := containers[0].Labels[dockerpkg.LabelRedisPort]
	if !ok {
		return nil, fmt.Errorf("Redis port label missing for instance '%s'", instanceName)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis port '%s': %w", portStr, err)
	}

	return &Info{
		Name:      instanceName,
		Status:    DetermineStatus(containers),
		RedisPort: port,
		RedisURL:  RedisURL(port),
	}, nil
}

// ensureImage pulls image unless it is already present locally.
func ensureImage(ctx context.Context, cli *client.Client, image string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}

	reader, err := cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to complete image pull %s: %w", image, err)
	}
	return nil
}

func containerName(c types.Container) string {
	if len(c.Names) > 0 {
		return c.Names[0]
	}
	return c.ID
}
