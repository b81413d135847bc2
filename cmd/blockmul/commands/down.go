package commands

import (
	"context"
	"fmt"

	dockerpkg "github.com/dyluth/blockmul/internal/docker"
	"github.com/dyluth/blockmul/internal/instance"
	"github.com/dyluth/blockmul/internal/printer"
	"github.com/spf13/cobra"
)

var (
	downRun      string
	downRedisURL string
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Remove what a run left behind",
	Long: `Delete a run's Redis keys and remove its Docker resources (rank containers,
Redis container and network).

Runs started with --keep, and failed docker runs, leave these behind on purpose
so that "blockmul status" can inspect them.

Examples:
  blockmul down --run run-1a2b3c4d
  blockmul down --run nightly --redis-url redis://localhost:6379`,
	Args: cobra.NoArgs,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringVar(&downRun, "run", "", "Run name (required)")
	downCmd.Flags().StringVar(&downRedisURL, "redis-url", "", "Redis URL of the run (default: run.redis_url, then Docker discovery)")
	downCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := instance.ValidateName(downRun); err != nil {
		return printer.Error("Invalid run name", err.Error(), nil)
	}

	// Keys go first: the Redis holding them may be one of the containers
	if url, err := resolveRedisURL(ctx, downRedisURL, downRun); err == nil {
		rc, err := connectRun(url, downRun)
		if err != nil {
			return err
		}
		n, err := rc.Purge(ctx)
		rc.Close()
		if err != nil {
			printer.Warning("failed to delete Redis keys: %v\n", err)
		} else {
			printer.Step("Deleted %d Redis keys\n", n)
		}
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		printer.Warning("Docker not available, skipping container cleanup\n")
		return nil
	}
	defer cli.Close()

	inUse, err := instance.CheckNameCollision(ctx, cli, downRun)
	if err != nil {
		return err
	}
	if inUse {
		printer.Step("Removing Docker resources of run %s...\n", downRun)
		if err := dockerpkg.RemoveRun(ctx, cli, downRun); err != nil {
			return printer.Error(fmt.Sprintf("failed to remove run '%s'", downRun), err.Error(), nil)
		}
	}

	printer.Success("Run '%s' removed\n", downRun)
	return nil
}
