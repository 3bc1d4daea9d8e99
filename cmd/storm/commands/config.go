package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stormpkg/storm/pkg/config"
)

func newConfigCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get and set configuration options",
		Long: `Edit the tool configuration by dotted key. The configuration file
lives inside the package store; --file edits another file. Keys this
version of storm does not understand are preserved.`,
		Example: `  # Read a value
  storm config get cli.prompt

  # Change the sandbox build timeout
  storm config set sandbox.build_timeout_seconds 900

  # Drop a value, falling back to the default
  storm config unset sandbox.build_timeout_seconds`,
	}

	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "config file to edit (defaults to config for active package store)")

	target := func() string {
		if file != "" {
			return file
		}
		return configPath()
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Get the current value for a configuration option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := config.Get(target(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set the value for a configuration option",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Set(target(), args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unset KEY",
		Short: "Remove an option from the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Unset(target(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Validate and show the entire configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(target())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Replace all configuration options with their default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Reset(target())
		},
	})

	return cmd
}
