package commands

import (
	"github.com/dyluth/blockmul/internal/printer"
	"github.com/dyluth/blockmul/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter blockmul.yml",
	Long: `Write a commented blockmul.yml with the default run (two 5x5 index-sum
operands on 4 processes) and a Dockerfile for the docker launcher's rank image.

Creates:
  • blockmul.yml        - run configuration
  • Dockerfile.blockmul - image whose entrypoint is blockmul

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing blockmul.yml and Dockerfile.blockmul")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return printer.Error("Cannot initialize", err.Error(), nil)
		}
	}

	if err := scaffold.Initialize(forceInit); err != nil {
		return printer.Error("Initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess()
	return nil
}
