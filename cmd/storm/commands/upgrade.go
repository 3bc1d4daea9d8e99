package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stormpkg/storm/pkg/resolver"
)

func newUpgradeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade [PACKAGE...]",
		Short: "Upgrade installed packages",
		Long: `Rebuild installed packages against the best available recipe
versions. Without arguments every installed package is considered.

Only the named packages lose their installed-version pin; transitive
dependencies stay at their installed versions unless a constraint
forces a change.`,
		Example: `  # Upgrade one package
  storm upgrade zlib

  # Upgrade to a constrained version
  storm upgrade zlib@>=1.3

  # Upgrade everything
  storm upgrade`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			req := resolver.Request{}
			if len(args) == 0 {
				installed, err := rt.installedView(ctx)
				if err != nil {
					return err
				}
				if len(installed) == 0 {
					fmt.Println("Nothing installed.")
					return nil
				}
				names := make([]string, 0, len(installed))
				for name := range installed {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					req.Items = append(req.Items, resolver.RequestItem{
						Name:   name,
						Action: resolver.ActionUpgrade,
					})
				}
			} else {
				for _, arg := range args {
					item, err := parseRequestItem(rt, arg, resolver.ActionUpgrade)
					if err != nil {
						return err
					}
					req.Items = append(req.Items, item)
				}
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
