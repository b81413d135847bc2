// Package launcher starts every rank of a multi-process run and waits for all
// of them, the way mpirun does for an MPI job. Ranks are either
// local re-executions of the blockmul binary or Docker containers.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/blockmul/internal/config"
	"github.com/dyluth/blockmul/internal/instance"
)

// RankCommand is the subcommand each rank process runs.
const RankCommand = "rank"

// ErrRankFailed is wrapped by every RankError.
var ErrRankFailed = errors.New("rank failed")

// Launcher starts size ranks of one run and blocks until all have exited.
type Launcher interface {
	Launch(ctx context.Context, plan *Plan) error
}

// Plan describes one multi-process run.
type Plan struct {
	Run        string
	Size       int
	RedisURL   string
	ConfigPath string   // optional, shared by all ranks
	Args       []string // extra flags passed to every rank after the subcommand
}

// Validate checks the plan before any rank is started. A size below two is
// left to the coordinator, which reports it with the standard diagnostic.
func (p *Plan) Validate() error {
	if err := instance.ValidateName(p.Run); err != nil {
		return err
	}
	if p.Size < 1 {
		return fmt.Errorf("process count must be >= 1, got %d", p.Size)
	}
	if p.RedisURL == "" {
		return fmt.Errorf("redis URL is required to launch a multi-process run")
	}
	return nil
}

// RankEnv returns the identity handed to rank r.
func (p *Plan) RankEnv(rank int) *config.RankEnv {
	return &config.RankEnv{
		Rank:       rank,
		Size:       p.Size,
		Run:        p.Run,
		RedisURL:   p.RedisURL,
		ConfigPath: p.ConfigPath,
	}
}

// command returns the argument list a rank is started with.
func (p *Plan) command() []string {
	return append([]string{RankCommand}, p.Args...)
}

// RankError reports a rank that exited unsuccessfully.
type RankError struct {
	Rank     int
	ExitCode int
	Logs     string // last lines of the rank's output, when available
	Err      error
}

func (e *RankError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rank %d failed", e.Rank)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if logs := strings.TrimSpace(e.Logs); logs != "" {
		fmt.Fprintf(&b, "\n%s", logs)
	}
	return b.String()
}

func (e *RankError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRankFailed}
	}
	return []error{ErrRankFailed, e.Err}
}
