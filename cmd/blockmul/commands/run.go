package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/dyluth/blockmul/internal/config"
	"github.com/dyluth/blockmul/internal/coordinator"
	"github.com/dyluth/blockmul/internal/printer"
	"github.com/dyluth/blockmul/internal/worker"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/dyluth/blockmul/pkg/matrix"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	runProcesses  int
	runTimeout    time.Duration
	runHealthAddr string
	runPrecise    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Multiply in a single process",
	Long: `Run the whole multiplication in this process. Every rank is a goroutine and
blocks travel over in-memory channels.

The operands come from blockmul.yml (or --config); without a configuration file
two 5x5 matrices with a[i][j] = i + j are multiplied on 4 processes.

Examples:
  blockmul run
  blockmul run -n 8 --precise
  blockmul run -c big.yml --timeout 30s`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runProcesses, "processes", "n", 0, "Total processes including the coordinator (default: run.processes)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Abort the run after this long (default: run.timeout)")
	runCmd.Flags().StringVar(&runHealthAddr, "health-addr", "", "Serve GET /healthz on this address while the run is in progress")
	runCmd.Flags().BoolVar(&runPrecise, "precise", false, "Print result entries with %g instead of %5.0f")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg.Run, runProcesses, runTimeout, runHealthAddr, runPrecise)
	if err := cfg.Run.Validate(); err != nil {
		return printer.Error("Invalid run options", err.Error(), nil)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	console := printer.NewConsole(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Run.Precise)
	if err := checkTasks(console, cfg.Run.Processes); err != nil {
		return err
	}

	left, right, err := cfg.Matrix.Operands()
	if err != nil {
		return printer.Error("Invalid operands", err.Error(), nil)
	}

	ctx, cancel := runContext(cmd.Context(), cfg.Run.Timeout)
	defer cancel()

	start := time.Now()
	result, err := multiplyInProcess(ctx, cfg, left, right, console, logger)
	if err != nil {
		return reportRunError(console, err, map[string]string{
			"processes": strconv.Itoa(cfg.Run.Processes),
			"transport": config.TransportMemory,
		})
	}

	console.Matrix(result)
	console.Elapsed(time.Since(start))
	return nil
}

// multiplyInProcess runs the coordinator and every worker as goroutines over an
// in-memory world.
func multiplyInProcess(ctx context.Context, cfg *config.Config, left, right *matrix.Dense, reporter coordinator.Reporter, logger *zap.Logger) (*matrix.Dense, error) {
	world, err := comm.NewMemoryWorld(cfg.Run.Processes)
	if err != nil {
		return nil, err
	}
	defer world.Close()

	g, gctx := errgroup.WithContext(ctx)
	for rank := 1; rank < world.Size(); rank++ {
		c, err := world.Comm(rank)
		if err != nil {
			return nil, err
		}
		w, err := worker.New(c, logger.With(zap.Int("rank", rank)))
		if err != nil {
			return nil, err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	coordComm, err := world.Comm(comm.CoordinatorRank)
	if err != nil {
		return nil, err
	}
	coord, err := coordinator.New(coordComm, coordinator.Options{Reporter: reporter, Logger: logger})
	if err != nil {
		return nil, err
	}

	stopHealth, err := startHealth(cfg.Run.HealthAddr,
		coordinator.NewHealthServer(cfg.Run.HealthAddr, coord, nil, config.TransportMemory, logger), logger)
	if err != nil {
		return nil, err
	}
	defer stopHealth()

	// A failed coordinator cancels gctx, which releases workers still waiting
	// for a block
	var result *matrix.Dense
	g.Go(func() error {
		var err error
		result, err = coord.Run(gctx, left, right)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
