package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	var (
		all       bool
		built     bool
		installed bool
		history   bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed/built packages",
		Long: `List packages known to the store.

Without flags the installed packages are listed. --built lists saved
builds in the package store, --all lists every package the synced
repositories provide, and --history shows the transaction journal.`,
		Example: `  # Installed packages
  storm list

  # Every available package with its versions
  storm list --all

  # Recent transaction history
  storm list --history --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := 0
			for _, b := range []bool{all, built, installed, history} {
				if b {
					modes++
				}
			}
			if modes > 1 {
				return fmt.Errorf("--all, --built, --installed, and --history are mutually exclusive")
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			switch {
			case all:
				names := rt.recipes.Names()
				if jsonOutput {
					out := make(map[string][]string, len(names))
					for _, name := range names {
						for _, rec := range rt.recipes.Versions(name) {
							out[name] = append(out[name], rec.Version.String())
						}
					}
					return printJSON(out)
				}
				for _, name := range names {
					versions := make([]string, 0, 4)
					for _, rec := range rt.recipes.Versions(name) {
						versions = append(versions, rec.Version.String())
					}
					fmt.Printf("%s (%s)\n", name, strings.Join(versions, ", "))
				}
				return nil

			case built:
				ids, err := rt.coord.Built()
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(ids)
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil

			case history:
				entries, err := rt.db.ListJournal(ctx, "", limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(entries)
				}
				for _, e := range entries {
					pkg := e.Package
					if pkg == "" {
						pkg = "-"
					}
					fmt.Printf("%s  %-10s %-12s %s\n",
						e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, pkg, e.Message)
				}
				return nil

			default:
				snapshot, err := rt.db.Snapshot(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(snapshot)
				}
				for _, pkg := range snapshot {
					fmt.Printf("%s %s\n", pkg.Name, pkg.Version)
				}
				return nil
			}
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "list all packages in the repositories")
	cmd.Flags().BoolVarP(&built, "built", "b", false, "list packages with saved builds")
	cmd.Flags().BoolVarP(&installed, "installed", "i", false, "list currently installed packages")
	cmd.Flags().BoolVar(&history, "history", false, "show the transaction journal")
	cmd.Flags().IntVar(&limit, "limit", 50, "max journal entries with --history")

	return cmd
}
