package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configFlag string
	binaryFlag string
	modelFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clareza-cli",
		Short:         "Clareza command-line interface",
		Long:          "clareza-cli drives the AI tool bridge from a terminal, or talks to a running backend.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&binaryFlag, "binary", "", "explicit path to the tool executable")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model to use (default from config)")

	rootCmd.AddCommand(
		promptCmd(),
		interactiveCmd(),
		checkCmd(),
		modelsCmd(),
		statusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
