package commands

import (
	"github.com/spf13/cobra"

	"github.com/stormpkg/storm/pkg/resolver"
)

func newInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install PACKAGE...",
		Short: "Install packages",
		Long: `Resolve, build, and install packages with their dependencies.

Package arguments take the forms:
  name             any version from the default repositories
  name@CONSTRAINT  a version matching the constraint, e.g. zlib@>=1.2
  repo:name        a package from a specific repository

All requested packages resolve together and commit in one
transaction: either everything installs or nothing does.`,
		Example: `  # Install a package and its dependencies
  storm install zlib

  # Install a pinned version
  storm install zlib@==1.3

  # Install from a specific repository, without prompting
  storm install extra:htop --yes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			req := resolver.Request{}
			for _, arg := range args {
				item, err := parseRequestItem(rt, arg, resolver.ActionInstall)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
			}

			plan, err := rt.resolve(ctx, req)
			if err != nil {
				return err
			}
			return rt.applyPlan(ctx, plan)
		},
	}
	return cmd
}
