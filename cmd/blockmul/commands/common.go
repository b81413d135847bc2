package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/blockmul/internal/config"
	"github.com/dyluth/blockmul/internal/coordinator"
	"github.com/dyluth/blockmul/internal/logging"
	"github.com/dyluth/blockmul/internal/printer"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// tooFewTasksMessage is printed when a run has no worker rank.
const tooFewTasksMessage = "Can't run with one task, exiting"

// loadConfig loads the configuration at path (or the default lookup when empty)
// and applies the global logging overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		if path == "" {
			path = config.DefaultFile
		}
		return nil, printer.ErrorWithContext(
			"Invalid configuration",
			err.Error(),
			map[string]string{"config": path},
			[]string{"Fix the file, or run 'blockmul init --force' to write a fresh one"},
		)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, printer.Error("Invalid logging flags", err.Error(), nil)
	}

	return cfg, nil
}

// newLogger builds the structured logger described by cfg.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.ToLogging())
	if err != nil {
		return nil, printer.Error("Failed to initialise logging", err.Error(), nil)
	}
	return logger, nil
}

// applyRunFlags overrides the run section with the flags the user set.
func applyRunFlags(cmd *cobra.Command, run *config.RunConfig, processes int, timeout time.Duration, healthAddr string, precise bool) {
	flags := cmd.Flags()
	if flags.Changed("processes") {
		run.Processes = processes
	}
	if flags.Changed("timeout") {
		run.Timeout = timeout
	}
	if flags.Changed("health-addr") {
		run.HealthAddr = healthAddr
	}
	if flags.Changed("precise") {
		run.Precise = precise
	}
}

// runContext returns a context cancelled on SIGINT/SIGTERM and after timeout,
// when one is set.
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// checkTasks fails a run without worker ranks before any operand is built or any
// connection is made.
func checkTasks(console *printer.Console, processes int) error {
	if processes >= 2 {
		return nil
	}
	console.Fatal(tooFewTasksMessage)
	return fmt.Errorf("%w: world has %d", coordinator.ErrTooFewProcesses, processes)
}

// reportRunError turns a failed run into the diagnostic the user sees.
func reportRunError(console *printer.Console, err error, ctx map[string]string) error {
	if errors.Is(err, coordinator.ErrTooFewProcesses) {
		console.Fatal(tooFewTasksMessage)
		return err
	}

	suggestions := []string{"Re-run with --log-level debug for the full event log"}
	if errors.Is(err, comm.ErrRunInUse) {
		suggestions = []string{"Choose another --run name", "Or clear the old run with 'blockmul down --run " + ctx["run"] + "'"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		suggestions = []string{"Increase --timeout or run.timeout", suggestions[0]}
	}
	printed := printer.ErrorWithContext("Run failed", err.Error(), ctx, suggestions)
	return fmt.Errorf("%w: %w", printed, err)
}

// startHealth starts the coordinator health endpoint when addr is set and
// returns a function that stops it.
func startHealth(addr string, h *coordinator.HealthServer, logger *zap.Logger) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	if err := h.Start(); err != nil {
		return nil, printer.Error("Failed to start health endpoint", err.Error(), []string{"Choose a free address with --health-addr"})
	}
	logger.Info("health_server_started", zap.String("addr", h.Addr()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	}, nil
}
