package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stormpkg/storm/pkg/resolver"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build PACKAGE...",
		Short: "Build packages without installing them",
		Long: `Resolve and build packages, saving the artifacts in the package
store without installing them. Saved builds appear in 'storm list
--built' and are reclaimed by 'storm uninstall --clean' once nothing
references them.`,
		Example: `  # Build a package and its dependencies
  storm build zlib

  # Build a pinned version
  storm build zlib@==1.3`,
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
			if plan.IsEmpty() {
				fmt.Println("Nothing to do.")
				return nil
			}
			if err := rt.checkPolicies(ctx, plan); err != nil {
				return err
			}

			saved, err := rt.coord.Build(ctx, plan)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(saved)
			}
			for _, id := range saved {
				fmt.Printf("built %s\n", id)
			}
			return nil
		},
	}
	return cmd
}
