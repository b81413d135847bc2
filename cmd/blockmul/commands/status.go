package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/blockmul/internal/config"
	dockerpkg "github.com/dyluth/blockmul/internal/docker"
	"github.com/dyluth/blockmul/internal/instance"
	"github.com/dyluth/blockmul/internal/printer"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	statusRun      string
	statusRedisURL string
	statusJSON     bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the run record of a multi-process run",
	Long: `Show the record the coordinator keeps in Redis for a run: its size, operand
dimensions, lifecycle state, how many replies have been merged and the error
that ended it, if any.

Records of successful runs are deleted unless the run was started with --keep.

Without --redis-url the Redis of a docker-launched run is located through Docker.

Examples:
  blockmul status --run nightly --redis-url redis://localhost:6379
  blockmul status --run run-1a2b3c4d --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRun, "run", "", "Run name (required)")
	statusCmd.Flags().StringVar(&statusRedisURL, "redis-url", "", "Redis URL of the run (default: run.redis_url, then Docker discovery)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the record as JSON")
	statusCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := instance.ValidateName(statusRun); err != nil {
		return printer.Error("Invalid run name", err.Error(), nil)
	}

	url, err := resolveRedisURL(ctx, statusRedisURL, statusRun)
	if err != nil {
		return err
	}

	rc, err := connectRun(url, statusRun)
	if err != nil {
		return err
	}
	defer rc.Close()

	record, err := rc.GetRunRecord(ctx)
	if comm.IsNotFound(err) {
		return printer.ErrorWithContext(
			fmt.Sprintf("no record for run '%s'", statusRun),
			"The run never started, or it finished successfully and its keys were removed.",
			map[string]string{"redis_url": url},
			[]string{"Start runs with --keep to inspect them afterwards"},
		)
	}
	if err != nil {
		return printer.Error("Failed to read run record", err.Error(), nil)
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}
	printRecord(cmd.OutOrStdout(), record)
	return nil
}

// resolveRedisURL picks the Redis of a run: the flag, then run.redis_url from
// the configuration, then the published port of a docker-launched run.
func resolveRedisURL(ctx context.Context, flagURL, run string) (string, error) {
	if flagURL != "" {
		return flagURL, nil
	}

	if cfg, err := config.LoadOrDefault(configPath); err == nil && cfg.Run.RedisURL != "" {
		return cfg.Run.RedisURL, nil
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return "", printer.Error(
			"Redis URL required",
			"No --redis-url was given and Docker is not available to locate the run's Redis.",
			[]string{"Pass --redis-url redis://host:port"},
		)
	}
	defer cli.Close()

	url, err := instance.GetRunRedisURL(ctx, cli, run)
	if err != nil {
		return "", printer.Error("Redis URL required", err.Error(), []string{"Pass --redis-url redis://host:port"})
	}
	return url, nil
}

// connectRun opens a coordinator-side endpoint used only for run keys.
func connectRun(url, run string) (*comm.RedisComm, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, printer.Error("Invalid Redis URL", err.Error(), nil)
	}
	rc, err := comm.NewRedisComm(opts, run, comm.CoordinatorRank, 1)
	if err != nil {
		return nil, printer.Error("Failed to connect to Redis", err.Error(), nil)
	}
	return rc, nil
}

func printRecord(w io.Writer, r *comm.RunRecord) {
	fmt.Fprintf(w, "Run:        %s\n", r.Run)
	fmt.Fprintf(w, "State:      %s\n", r.State)
	fmt.Fprintf(w, "Processes:  %d (%d workers)\n", r.Size, r.Size-1)
	fmt.Fprintf(w, "Operands:   %dx%d × %dx%d\n", r.Rows, r.Inner, r.Inner, r.Cols)
	fmt.Fprintf(w, "Replies:    %d/%d\n", r.Replies, r.Size-1)
	fmt.Fprintf(w, "Started:    %s\n", time.UnixMilli(r.StartedAtMs).Format(time.RFC3339))
	fmt.Fprintf(w, "Updated:    %s\n", time.UnixMilli(r.UpdatedAtMs).Format(time.RFC3339))
	if r.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", r.Error)
	}
}
