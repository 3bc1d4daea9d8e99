package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stormpkg/storm/pkg/resolver"
)

func newUninstallCommand() *cobra.Command {
	var (
		cascade bool
		clean   bool
	)

	cmd := &cobra.Command{
		Use:   "uninstall [PACKAGE...]",
		Short: "Uninstall packages",
		Long: `Remove installed packages from the store.

Removing a package that other installed packages depend on fails
unless --cascade also removes the dependents. With --clean, saved
builds that no installed package references are reclaimed afterwards.`,
		Example: `  # Remove one package
  storm uninstall zlib

  # Remove a package and everything that depends on it
  storm uninstall zlib --cascade

  # Only reclaim unused builds
  storm uninstall --clean`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !clean {
				return fmt.Errorf("nothing to do: name packages or pass --clean")
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if len(args) > 0 {
				req := resolver.Request{Cascade: cascade}
				for _, arg := range args {
					item, err := parseRequestItem(rt, arg, resolver.ActionRemove)
					if err != nil {
						return err
					}
					req.Items = append(req.Items, item)
				}

				plan, err := rt.resolve(ctx, req)
				if err != nil {
					return err
				}
				if err := rt.applyPlan(ctx, plan); err != nil {
					return err
				}
			}

			if clean {
				removed, err := rt.coord.Clean(ctx)
				if err != nil {
					return err
				}
				for _, id := range removed {
					fmt.Printf("reclaimed %s\n", id)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "also remove installed dependents")
	cmd.Flags().BoolVarP(&clean, "clean", "c", false, "remove unused builds")

	return cmd
}
