package instance

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerpkg "github.com/dyluth/blockmul/internal/docker"
)

// Host ports handed to per-run Redis containers. One hundred runs can share a host.
const (
	FirstRedisPort = 6379
	LastRedisPort  = 6478
)

// FindNextAvailablePort returns the lowest port in [FirstRedisPort, LastRedisPort]
// that no blockmul Redis container has claimed and that can be bound on the host.
func FindNextAvailablePort(ctx context.Context, cli dockerpkg.API) (int, error) {
	claimed, err := claimedRedisPorts(ctx, cli)
	if err != nil {
		return 0, err
	}

	for port := FirstRedisPort; port <= LastRedisPort; port++ {
		if claimed[port] || !isPortBindable(port) {
			continue
		}
		return port, nil
	}

	return 0, fmt.Errorf("no free Redis port between %d and %d", FirstRedisPort, LastRedisPort)
}

// claimedRedisPorts reads the port label of every Redis container, running or not,
// so that a stopped run kept with --keep does not lose its port to a new run.
func claimedRedisPorts(ctx context.Context, cli dockerpkg.API) (map[int]bool, error) {
	filter := filters.NewArgs(
		filters.Arg("label", dockerpkg.LabelProject+"=true"),
		filters.Arg("label", dockerpkg.LabelComponent+"="+dockerpkg.ComponentRedis),
	)

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filter})
	if err != nil {
		return nil, fmt.Errorf("failed to list Redis containers: %w", err)
	}

	claimed := make(map[int]bool, len(containers))
	for _, c := range containers {
		port, err := strconv.Atoi(c.Labels[dockerpkg.LabelRedisPort])
		if err != nil {
			continue
		}
		claimed[port] = true
	}
	return claimed, nil
}

func isPortBindable(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
