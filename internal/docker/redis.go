package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"
)

// DefaultRedisImage is the image used for a run's Redis container.
const DefaultRedisImage = "redis:7-alpine"

// RunResources describes the Docker resources created for a run.
type RunResources struct {
	Network          string
	RedisContainerID string
	// RedisURL is the address ranks on the run network use
	RedisURL string
}

// CreateRunNetwork creates the isolated bridge network for a run.
func CreateRunNetwork(ctx context.Context, cli API, run string) (string, error) {
	name := NetworkName(run)
	if _, err := cli.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver: "bridge",
		Labels: BuildLabels(run, ""),
	}); err != nil {
		return "", fmt.Errorf("failed to create network '%s': %w", name, err)
	}
	return name, nil
}

// StartRedis starts a Redis container on the run network and publishes it on
// hostPort of 127.0.0.1 so the launching host can inspect the run too.
func StartRedis(ctx context.Context, cli API, run, networkName, image string, hostPort int) (*RunResources, error) {
	if image == "" {
		image = DefaultRedisImage
	}

	name := RedisContainerName(run)
	labels := BuildLabels(run, ComponentRedis)
	labels[LabelRedisPort] = fmt.Sprintf("%d", hostPort)

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
				{
					HostIP:   "127.0.0.1",
					HostPort: fmt.Sprintf("%d", hostPort),
				},
			},
		},
	}, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	return &RunResources{
		Network:          networkName,
		RedisContainerID: resp.ID,
		// Container name resolves through Docker DNS on the run network
		RedisURL: fmt.Sprintf("redis://%s:6379", name),
	}, nil
}

// RemoveRun force-removes every container of a run and then its network.
// It keeps going after individual failures and returns the first one.
func RemoveRun(ctx context.Context, cli API, run string) error {
	var firstErr error
	record := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", RunFilter(run))),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			record(fmt.Errorf("failed to remove container %s: %w", c.ID, err))
		}
	}

	if err := cli.NetworkRemove(ctx, NetworkName(run)); err != nil {
		record(fmt.Errorf("failed to remove network %s: %w", NetworkName(run), err))
	}

	return firstErr
}
