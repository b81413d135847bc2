package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dyluth/blockmul/internal/config"
	dockerpkg "github.com/dyluth/blockmul/internal/docker"
	"github.com/dyluth/blockmul/internal/instance"
	"github.com/dyluth/blockmul/internal/launcher"
	"github.com/dyluth/blockmul/internal/printer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	launchProcesses int
	launchLauncher  string
	launchRedisURL  string
	launchRun       string
	launchImage     string
	launchTimeout   time.Duration
	launchKeep      bool
	launchPrecise   bool
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start every rank of a multi-process run and wait for them",
	Long: `Start one process per rank and wait until all of them exit. Ranks talk to each
other through Redis; rank 0 prints the result.

Launchers:
  local   re-executes this binary once per rank ("blockmul rank")
  docker  starts one container per rank on a private network; without
          --redis-url a Redis container is started for the run as well

The launch fails with the exit code of the first rank that fails.

Examples:
  blockmul launch -n 4 --redis-url redis://localhost:6379
  blockmul launch -n 8 --launcher docker --image blockmul:latest
  blockmul launch -n 4 --launcher docker --keep   # keep Redis for "blockmul status"`,
	Args: cobra.NoArgs,
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().IntVarP(&launchProcesses, "processes", "n", 0, "Total processes including the coordinator (default: run.processes)")
	launchCmd.Flags().StringVar(&launchLauncher, "launcher", "", "local or docker (default: run.launcher)")
	launchCmd.Flags().StringVar(&launchRedisURL, "redis-url", "", "Redis URL the ranks share (default: run.redis_url)")
	launchCmd.Flags().StringVar(&launchRun, "run", "", "Run name (default: run.name, generated when empty)")
	launchCmd.Flags().StringVar(&launchImage, "image", "", "Rank image for the docker launcher (default: run.image)")
	launchCmd.Flags().DurationVar(&launchTimeout, "timeout", 0, "Abort every rank after this long (default: run.timeout)")
	launchCmd.Flags().BoolVar(&launchKeep, "keep", false, "Keep the run's Redis keys and Docker Redis after success")
	launchCmd.Flags().BoolVar(&launchPrecise, "precise", false, "Print result entries with %g instead of %5.0f")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg.Run, launchProcesses, launchTimeout, "", launchPrecise)
	if cmd.Flags().Changed("launcher") {
		cfg.Run.Launcher = launchLauncher
	}
	if cmd.Flags().Changed("image") {
		cfg.Run.Image = launchImage
	}
	if cmd.Flags().Changed("redis-url") {
		cfg.Run.RedisURL = launchRedisURL
	}
	if cmd.Flags().Changed("run") {
		cfg.Run.Name = launchRun
	}
	if err := cfg.Run.Validate(); err != nil {
		return printer.Error("Invalid run options", err.Error(), nil)
	}

	run := cfg.Run.Name
	if run == "" {
		run = instance.GenerateName()
	}
	if err := instance.ValidateName(run); err != nil {
		return printer.Error("Invalid run name", err.Error(), nil)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run", run))

	sharedConfig, err := sharedConfigPath()
	if err != nil {
		return printer.Error("Failed to resolve configuration path", err.Error(), nil)
	}

	plan := &launcher.Plan{
		Run:        run,
		Size:       cfg.Run.Processes,
		RedisURL:   cfg.Run.RedisURL,
		ConfigPath: sharedConfig,
		Args:       rankArgs(cmd, cfg),
	}

	ctx, cancel := runContext(cmd.Context(), cfg.Run.Timeout)
	defer cancel()

	logger.Info("launch_started",
		zap.String("launcher", cfg.Run.Launcher),
		zap.Int("processes", plan.Size),
	)

	switch cfg.Run.Launcher {
	case config.LauncherDocker:
		err = launchDocker(ctx, cmd, cfg, plan, logger)
	default:
		err = launchLocal(ctx, cmd, plan, logger)
	}
	if err != nil {
		return err
	}

	logger.Info("launch_finished")
	return nil
}

func launchLocal(ctx context.Context, cmd *cobra.Command, plan *launcher.Plan, logger *zap.Logger) error {
	if plan.RedisURL == "" {
		return printer.Error(
			"Redis URL required",
			"Ranks started by the local launcher meet in an existing Redis.",
			[]string{
				"Pass --redis-url redis://localhost:6379 (or set run.redis_url)",
				"Use --launcher docker to start a Redis container for the run",
			},
		)
	}

	l := &launcher.Local{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr(), Logger: logger}
	return reportLaunchError(l.Launch(ctx, plan), plan)
}

func launchDocker(ctx context.Context, cmd *cobra.Command, cfg *config.Config, plan *launcher.Plan, logger *zap.Logger) error {
	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker not available", err.Error(), nil)
	}
	defer cli.Close()

	inUse, err := instance.CheckNameCollision(ctx, cli, plan.Run)
	if err != nil {
		return err
	}
	if inUse {
		return printer.Error(
			fmt.Sprintf("run '%s' already exists", plan.Run),
			"Docker resources with this run name are still present.",
			[]string{
				fmt.Sprintf("Remove them first:\n  blockmul down --run %s", plan.Run),
				"Choose another name with --run",
			},
		)
	}

	network, err := dockerpkg.CreateRunNetwork(ctx, cli, plan.Run)
	if err != nil {
		return err
	}

	redisStarted, keepRedis := false, false
	defer func() {
		if keepRedis {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := dockerpkg.RemoveRun(cleanupCtx, cli, plan.Run); err != nil {
			logger.Warn("run_cleanup_failed", zap.Error(err))
		}
	}()

	if plan.RedisURL == "" {
		port, err := instance.FindNextAvailablePort(ctx, cli)
		if err != nil {
			return err
		}
		printer.Step("Starting Redis for run %s on port %d...\n", plan.Run, port)
		res, err := dockerpkg.StartRedis(ctx, cli, plan.Run, network, "", port)
		if err != nil {
			return err
		}
		plan.RedisURL = res.RedisURL
		redisStarted = true
		keepRedis = launchKeep
	}

	printer.Step("Starting %d rank containers from %s...\n", plan.Size, cfg.Run.Image)
	d := &launcher.Docker{
		Client:  cli,
		Image:   cfg.Run.Image,
		Network: network,
		Stdout:  cmd.OutOrStdout(),
		Logger:  logger,
	}
	if err := reportLaunchError(d.Launch(ctx, plan), plan); err != nil {
		// A failed run keeps its Redis so the record can be inspected
		keepRedis = redisStarted
		if keepRedis {
			printer.Info("Redis kept for run %s; remove it with 'blockmul down --run %s'\n", plan.Run, plan.Run)
		}
		return err
	}

	if keepRedis {
		printer.Info("Redis kept for run %s; inspect with 'blockmul status --run %s', remove with 'blockmul down --run %s'\n",
			plan.Run, plan.Run, plan.Run)
	}
	return nil
}

// reportLaunchError prints a failed launch. The returned error keeps the
// RankError so that main can exit with the rank's code.
func reportLaunchError(err error, plan *launcher.Plan) error {
	if err == nil {
		return nil
	}

	var rankErr *launcher.RankError
	if !errors.As(err, &rankErr) {
		return printer.Error("Launch failed", err.Error(), nil)
	}

	printer.ErrorWithContext(
		fmt.Sprintf("Run '%s' failed", plan.Run),
		rankErr.Error(),
		map[string]string{
			"rank":      strconv.Itoa(rankErr.Rank),
			"exit_code": strconv.Itoa(rankErr.ExitCode),
		},
		[]string{fmt.Sprintf("Inspect the run record:\n  blockmul status --run %s --redis-url <url>", plan.Run)},
	)
	return rankErr
}

// sharedConfigPath returns the absolute path of the configuration every rank
// must load, or "" when the built-in default is in use.
func sharedConfigPath() (string, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err != nil {
			return "", nil
		}
		path = config.DefaultFile
	}
	return filepath.Abs(path)
}

// rankArgs forwards the flags every rank needs to agree on.
func rankArgs(cmd *cobra.Command, cfg *config.Config) []string {
	var args []string
	if launchKeep {
		args = append(args, "--keep")
	}
	if cmd.Flags().Changed("timeout") {
		args = append(args, "--timeout", cfg.Run.Timeout.String())
	}
	if cmd.Flags().Changed("precise") {
		args = append(args, fmt.Sprintf("--precise=%t", cfg.Run.Precise))
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	if logFormat != "" {
		args = append(args, "--log-format", logFormat)
	}
	return args
}
