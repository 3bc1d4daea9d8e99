package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stormpkg/storm/pkg/config"
)

var (
	// Global flags
	storeFlag  string
	verbose    bool
	jsonOutput bool
	assumeYes  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storm",
		Short: "Storm - source-based package manager",
		Long: `Storm builds packages from recipes inside isolated sandboxes and
installs them transactionally into a package store.

Features:
  - CUE recipes with Starlark generators
  - Dependency resolution with version constraints and conflicts
  - Namespace-isolated, network-less builds
  - Atomic install/upgrade/remove transactions
  - Policy checks on every plan before execution`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&storeFlag, "store", "s", "", "package store path (defaults to $STORMPATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "skip confirmation prompts")

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newUninstallCommand())
	rootCmd.AddCommand(newUpgradeCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newRepoCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// storePath resolves the package store directory from the global flag,
// then $STORMPATH, then the per-user default.
func storePath() string {
	if storeFlag != "" {
		return storeFlag
	}
	return config.DefaultStorePath()
}

// configPath resolves the configuration file for the active store.
func configPath() string {
	return config.FilePath(storePath())
}
