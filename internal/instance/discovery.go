package instance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerpkg "github.com/dyluth/blockmul/internal/docker"
)

// GetRunRedisPort retrieves the published Redis port of a docker-launched run
// from the Redis container's labels.
func GetRunRedisPort(ctx context.Context, cli dockerpkg.API, run string) (int, error) {
	filter := filters.NewArgs(
		filters.Arg("label", dockerpkg.RunFilter(run)),
		filters.Arg("label", dockerpkg.LabelComponent+"="+dockerpkg.ComponentRedis),
	)

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filter})
	if err != nil {
		return 0, fmt.Errorf("failed to list Redis containers: %w", err)
	}

	if len(containers) == 0 {
		return 0, fmt.Errorf("Redis container not found for run '%s'", run)
	}

	portStr, ok := containers[0].Labels[dockerpkg.LabelRedisPort]
	if !ok {
		return 0, fmt.Errorf("Redis port label missing for run '%s'", run)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid Redis port '%s': %w", portStr, err)
	}

	return port, nil
}

// GetRunRedisURL resolves the host-side Redis URL of a docker-launched run.
func GetRunRedisURL(ctx context.Context, cli dockerpkg.API, run string) (string, error) {
	port, err := GetRunRedisPort(ctx, cli, run)
	if err != nil {
		return "", err
	}
	return GetRedisURL(port), nil
}
