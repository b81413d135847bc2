package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dyluth/blockmul/internal/config"
	"github.com/dyluth/blockmul/internal/coordinator"
	"github.com/dyluth/blockmul/internal/instance"
	"github.com/dyluth/blockmul/internal/printer"
	"github.com/dyluth/blockmul/internal/worker"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// redisReadyTimeout bounds how long a rank waits for Redis to accept connections.
const redisReadyTimeout = 30 * time.Second

var (
	rankRank       int
	rankSize       int
	rankRun        string
	rankRedisURL   string
	rankKeep       bool
	rankTimeout    time.Duration
	rankHealthAddr string
	rankPrecise    bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Run one rank of a multi-process run",
	Long: `Run a single rank of a run whose ranks communicate through Redis. Rank 0 is
the coordinator and prints the result; every other rank is a worker.

The identity can be given as flags or through the environment, which is how
"blockmul launch" starts ranks:
  BLOCKMUL_RANK, BLOCKMUL_SIZE, BLOCKMUL_RUN, REDIS_URL, BLOCKMUL_CONFIG

All ranks of a run must use the same run name, size and configuration.

Examples:
  blockmul rank --rank 0 --size 4 --run nightly --redis-url redis://localhost:6379
  BLOCKMUL_RANK=2 BLOCKMUL_SIZE=4 BLOCKMUL_RUN=nightly REDIS_URL=redis://localhost:6379 blockmul rank`,
	Args: cobra.NoArgs,
	RunE: runRank,
}

func init() {
	rankCmd.Flags().IntVar(&rankRank, "rank", 0, "This process's rank (0 = coordinator)")
	rankCmd.Flags().IntVar(&rankSize, "size", 0, "Total number of ranks in the run")
	rankCmd.Flags().StringVar(&rankRun, "run", "", "Run name shared by all ranks")
	rankCmd.Flags().StringVar(&rankRedisURL, "redis-url", "", "Redis URL shared by all ranks")
	rankCmd.Flags().BoolVar(&rankKeep, "keep", false, "Coordinator only: keep the run's Redis keys after a successful run")
	rankCmd.Flags().DurationVar(&rankTimeout, "timeout", 0, "Abort the rank after this long (default: run.timeout)")
	rankCmd.Flags().StringVar(&rankHealthAddr, "health-addr", "", "Coordinator only: serve GET /healthz on this address")
	rankCmd.Flags().BoolVar(&rankPrecise, "precise", false, "Coordinator only: print result entries with %g")
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	env, err := config.LoadRankEnv(config.RankEnv{
		Rank:       rankRank,
		Size:       rankSize,
		Run:        rankRun,
		RedisURL:   rankRedisURL,
		ConfigPath: configPath,
	})
	if err != nil {
		return printer.Error("Invalid rank identity", err.Error(), nil)
	}
	if err := instance.ValidateName(env.Run); err != nil {
		return printer.Error("Invalid run name", err.Error(), nil)
	}

	cfg, err := loadConfig(env.ConfigPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg.Run, 0, rankTimeout, rankHealthAddr, rankPrecise)
	cfg.Run.Processes = env.Size
	cfg.Run.Transport = config.TransportRedis

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run", env.Run), zap.Int("rank", env.Rank))

	console := printer.NewConsole(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Run.Precise)
	if err := checkTasks(console, env.Size); err != nil {
		return err
	}

	opts, err := redis.ParseURL(env.RedisURL)
	if err != nil {
		return printer.Error("Invalid Redis URL", err.Error(), nil)
	}
	rc, err := comm.NewRedisComm(opts, env.Run, env.Rank, env.Size)
	if err != nil {
		return printer.Error("Failed to join run", err.Error(), nil)
	}
	defer rc.Close()

	ctx, cancel := runContext(cmd.Context(), cfg.Run.Timeout)
	defer cancel()

	readyCtx, readyCancel := context.WithTimeout(ctx, redisReadyTimeout)
	err = rc.WaitReady(readyCtx, 250*time.Millisecond)
	readyCancel()
	if err != nil {
		return printer.ErrorWithContext(
			"Redis is not reachable",
			err.Error(),
			map[string]string{"redis_url": env.RedisURL},
			[]string{"Check that Redis is running and reachable from this rank"},
		)
	}

	if env.Rank == comm.CoordinatorRank {
		return runCoordinatorRank(ctx, console, cfg, rc, logger)
	}
	return runWorkerRank(ctx, rc, logger)
}

func runCoordinatorRank(ctx context.Context, console *printer.Console, cfg *config.Config, rc *comm.RedisComm, logger *zap.Logger) error {
	left, right, err := cfg.Matrix.Operands()
	if err != nil {
		return printer.Error("Invalid operands", err.Error(), nil)
	}

	coord, err := coordinator.New(rc, coordinator.Options{
		Run:      rc.Run(),
		Reporter: console,
		Recorder: rc,
		Claimer:  rc,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	stopHealth, err := startHealth(cfg.Run.HealthAddr,
		coordinator.NewHealthServer(cfg.Run.HealthAddr, coord, rc, config.TransportRedis, logger), logger)
	if err != nil {
		return err
	}
	defer stopHealth()

	start := time.Now()
	result, err := coord.Run(ctx, left, right)
	if err != nil {
		// The record stays behind so that "blockmul status" can explain the failure
		return reportRunError(console, err, map[string]string{
			"run":       rc.Run(),
			"processes": strconv.Itoa(rc.Size()),
			"transport": config.TransportRedis,
		})
	}

	console.Matrix(result)
	console.Elapsed(time.Since(start))

	if !rankKeep {
		n, err := rc.Purge(ctx)
		if err != nil {
			logger.Warn("run_purge_failed", zap.Error(err))
		} else {
			logger.Debug("run_purged", zap.Int("keys", n))
		}
	}
	return nil
}

func runWorkerRank(ctx context.Context, rc *comm.RedisComm, logger *zap.Logger) error {
	w, err := worker.New(rc, logger)
	if err != nil {
		return err
	}
	if err := w.Run(ctx); err != nil {
		return printer.ErrorWithContext(
			fmt.Sprintf("Worker rank %d failed", rc.Rank()),
			err.Error(),
			map[string]string{"run": rc.Run(), "state": string(w.State())},
			nil,
		)
	}
	return nil
}
