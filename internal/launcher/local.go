package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Local starts every rank as a child process of the current binary.
type Local struct {
	// Executable defaults to the running binary
	Executable string
	// Prefix is inserted before the rank subcommand
	Prefix []string
	// Stdout receives the coordinator's output; worker stdout is discarded
	Stdout io.Writer
	// Stderr receives the diagnostics of every rank
	Stderr io.Writer
	Logger *zap.Logger
}

// Launch starts all ranks and waits for them. When one rank fails the others
// are killed, since the run can no longer complete.
func (l *Local) Launch(ctx context.Context, plan *Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	exe := l.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate blockmul executable: %w", err)
		}
	}

	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("launcher")

	stdout := l.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := &lockedWriter{w: l.Stderr}
	if l.Stderr == nil {
		stderr.w = os.Stderr
	}

	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < plan.Size; rank++ {
		rank := rank
		args := append(append([]string{}, l.Prefix...), plan.command()...)
		cmd := exec.CommandContext(gctx, exe, args...)
		cmd.Env = append(os.Environ(), plan.RankEnv(rank).Environ()...)
		cmd.Stderr = stderr
		if rank == 0 {
			cmd.Stdout = stdout
		}

		if err := cmd.Start(); err != nil {
			startErr := &RankError{Rank: rank, Err: fmt.Errorf("failed to start: %w", err)}
			g.Go(func() error { return startErr })
			break
		}
		logger.Debug("rank_started", zap.Int("rank", rank), zap.Int("pid", cmd.Process.Pid))

		g.Go(func() error {
			err := cmd.Wait()
			if err == nil {
				logger.Debug("rank_exited", zap.Int("rank", rank))
				return nil
			}

			rankErr := &RankError{Rank: rank, Err: err}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				rankErr.ExitCode = exitErr.ExitCode()
				rankErr.Err = nil
			}
			logger.Warn("rank_failed", zap.Int("rank", rank), zap.Int("exit_code", rankErr.ExitCode), zap.Error(err))
			return rankErr
		})
	}

	return g.Wait()
}

// lockedWriter serialises writes from several child processes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
