package commands

import (
	"errors"
	"fmt"

	"github.com/dyluth/blockmul/internal/launcher"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blockmul",
	Short: "blockmul - row-block distributed matrix multiplication",
	Long: `blockmul multiplies two dense matrices by splitting the rows of the left
operand into contiguous blocks, one per worker. Rank 0 coordinates: it sends
each worker its block and the whole right operand, then assembles the replies
into the product.

Runs either in one process ("blockmul run") or as one process per rank that
communicate through Redis ("blockmul launch", "blockmul rank").`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Unknown flags are an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Commands print their own formatted errors
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// ExitCode returns the process exit status for an error returned by Execute:
// the exit code of a failed rank when the error carries one, otherwise 1.
func ExitCode(err error) int {
	var rankErr *launcher.RankError
	if errors.As(err, &rankErr) && rankErr.ExitCode > 0 {
		return rankErr.ExitCode
	}
	return 1
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to blockmul.yml (default: ./blockmul.yml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override logging.format (console, json)")
}
