// Package instance manages local blackboard instances: a named Redis container
// that thinktank commands share through the blackboard.instance key prefix.
package instance

import (
	"context"
	"fmt"
	"regexp"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	dockerpkg "github.com/dyluth/thinktank/internal/docker"
)

const (
	// DefaultName is the instance used when none is configured
	DefaultName = "default"

	// MaxNameLength is the maximum length for an instance name (DNS-compatible)
	MaxNameLength = 63
)

// NamePattern matches DNS-compatible names: lowercase alphanumeric, hyphens
// allowed but not at start or end.
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks if an instance name is valid according to DNS naming rules.
// The name is used in container names and Redis key prefixes.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// CheckNameCollision reports whether any container already carries the instance name.
func CheckNameCollision(ctx context.Context, cli *client.Client, instanceName string) (bool, error) {
	containers, err := listInstanceContainers(ctx, cli, instanceName, "")
	if err != nil {
		return false, fmt.Errorf("failed to check for name collision: %w", err)
	}
	return len(containers) > 0, nil
}

// listInstanceContainers lists containers for instanceName, optionally
// narrowed to one component.
func listInstanceContainers(ctx context.Context, cli *client.Client, instanceName, component string) ([]types.Container, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName))
	if component != "" {
		filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelComponent, component))
	}

	return cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
}
