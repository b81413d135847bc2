package launcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	dockerpkg "github.com/dyluth/blockmul/internal/docker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ContainerConfigPath is where a run's blockmul.yml is mounted inside rank containers.
const ContainerConfigPath = "/etc/blockmul/blockmul.yml"

// DefaultLogTail is how many log lines of a failed rank are reported.
const DefaultLogTail = 20

// Docker starts every rank as a container on the run network. The image's
// entrypoint must be the blockmul binary.
type Docker struct {
	Client dockerpkg.API
	Image  string
	// Network defaults to the run network created by docker.CreateRunNetwork
	Network string
	// Stdout receives the coordinator's output once it has exited
	Stdout  io.Writer
	LogTail int
	Logger  *zap.Logger
}

type rankContainer struct {
	rank int
	id   string
	name string
}

// Launch creates and starts one container per rank, waits for all of them and
// removes them afterwards. When one rank fails the remaining waits are
// abandoned and the containers are force-removed.
func (d *Docker) Launch(ctx context.Context, plan *Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if d.Image == "" {
		return fmt.Errorf("docker launcher requires an image")
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("launcher")

	network := d.Network
	if network == "" {
		network = dockerpkg.NetworkName(plan.Run)
	}

	var started []rankContainer
	defer func() {
		// Remove even when ctx was cancelled
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		for _, rc := range started {
			rc := rc
			if err := d.Client.ContainerRemove(cleanupCtx, rc.id, container.RemoveOptions{Force: true}); err != nil {
				logger.Warn("rank_cleanup_failed", zap.Int("rank", rc.rank), zap.Error(err))
			}
		}
	}()

	for rank := 0; rank < plan.Size; rank++ {
		rc, err := d.startRank(ctx, plan, rank, network)
		if rc != nil {
			started = append(started, *rc)
		}
		if err != nil {
			return err
		}
		logger.Debug("rank_started", zap.Int("rank", rank), zap.String("container_name", rc.name))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rc := range started {
		rc := rc
		g.Go(func() error {
			return d.waitRank(gctx, rc, logger)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return d.copyCoordinatorOutput(ctx, started[0])
}

// startRank creates and starts one rank container. The returned container is
// non-nil whenever something was created and needs removing.
func (d *Docker) startRank(ctx context.Context, plan *Plan, rank int, network string) (*rankContainer, error) {
	env := plan.RankEnv(rank)
	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(network),
		AutoRemove:  false, // removed explicitly after the exit code and logs are read
	}

	if plan.ConfigPath != "" {
		source, err := filepath.Abs(plan.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		hostConfig.Mounts = []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   source,
			Target:   ContainerConfigPath,
			ReadOnly: true,
		}}
		env.ConfigPath = ContainerConfigPath
	}

	name := dockerpkg.RankContainerName(plan.Run, rank)
	resp, err := d.Client.ContainerCreate(ctx, &container.Config{
		Image:  d.Image,
		Cmd:    plan.command(),
		Env:    env.Environ(),
		Labels: dockerpkg.RankLabels(plan.Run, rank),
	}, hostConfig, nil, nil, name)
	if err != nil {
		return nil, &RankError{Rank: rank, Err: fmt.Errorf("failed to create container: %w", err)}
	}

	rc := &rankContainer{rank: rank, id: resp.ID, name: name}
	if err := d.Client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return rc, &RankError{Rank: rank, Err: fmt.Errorf("failed to start container: %w", err)}
	}
	return rc, nil
}

// waitRank blocks until the container exits and turns a non-zero exit into a
// RankError carrying the tail of its logs.
func (d *Docker) waitRank(ctx context.Context, rc rankContainer, logger *zap.Logger) error {
	statusCh, errCh := d.Client.ContainerWait(ctx, rc.id, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return &RankError{Rank: rc.rank, Err: fmt.Errorf("failed waiting for container: %w", err)}

	case status := <-statusCh:
		if status.StatusCode == 0 {
			logger.Debug("rank_exited", zap.Int("rank", rc.rank))
			return nil
		}

		logs, err := d.tail(ctx, rc.id)
		if err != nil {
			logger.Warn("rank_logs_unavailable", zap.Int("rank", rc.rank), zap.Error(err))
		}
		logger.Warn("rank_failed",
			zap.Int("rank", rc.rank),
			zap.String("container_name", rc.name),
			zap.Int64("exit_code", status.StatusCode),
		)
		return &RankError{Rank: rc.rank, ExitCode: int(status.StatusCode), Logs: logs}
	}
}

// tail returns the last LogTail lines of both output streams.
func (d *Docker) tail(ctx context.Context, id string) (string, error) {
	n := d.LogTail
	if n <= 0 {
		n = DefaultLogTail
	}

	rc, err := d.Client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", n),
	})
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", fmt.Errorf("failed to read container logs: %w", err)
	}
	return out.String(), nil
}

// copyCoordinatorOutput replays rank 0's stdout, which holds the result matrix.
func (d *Docker) copyCoordinatorOutput(ctx context.Context, rc rankContainer) error {
	out := d.Stdout
	if out == nil {
		out = os.Stdout
	}

	logs, err := d.Client.ContainerLogs(ctx, rc.id, container.LogsOptions{ShowStdout: true})
	if err != nil {
		return fmt.Errorf("failed to read coordinator output: %w", err)
	}
	defer logs.Close()

	if _, err := stdcopy.StdCopy(out, io.Discard, logs); err != nil {
		return fmt.Errorf("failed to read coordinator output: %w", err)
	}
	return nil
}
