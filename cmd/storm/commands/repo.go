package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stormpkg/storm/pkg/config"
	"github.com/stormpkg/storm/pkg/repo"
)

func newRepoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage recipe repositories",
		Long: `Manage the repositories storm pulls recipes from.

Repositories are named and ordered: the default list decides which
repository wins when several provide the same recipe, first entry
first. Backends: dir (local recipe tree), ssh (remote tree synced
over SFTP), dummy (empty, for testing).`,
	}

	cmd.AddCommand(newRepoListCommand())
	cmd.AddCommand(newRepoAddCommand())
	cmd.AddCommand(newRepoRemoveCommand())
	cmd.AddCommand(newRepoRenameCommand())
	cmd.AddCommand(newRepoSetDefaultCommand())
	cmd.AddCommand(newRepoSyncCommand())

	return cmd
}

// loadRepoConfig loads the tool configuration for repo table edits.
func loadRepoConfig() (string, *config.Config, error) {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return "", nil, err
	}
	return path, cfg, nil
}

func newRepoListCommand() *cobra.Command {
	var onlyDefault bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadRepoConfig()
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cfg.Repo)
			}

			defaults := make(map[string]int, len(cfg.Repo.Default))
			for i, name := range cfg.Repo.Default {
				defaults[name] = i + 1
			}
			for _, name := range cfg.Repo.List(onlyDefault) {
				spec := cfg.Repo.Repos[name]
				marker := " "
				if pos, ok := defaults[name]; ok {
					marker = fmt.Sprintf("%d", pos)
				}
				fmt.Printf("%s %-16s %-6s %s\n", marker, name, spec.Kind, describeSpec(spec))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&onlyDefault, "default", "d", false, "list only default repositories")
	return cmd
}

func describeSpec(spec repo.Spec) string {
	switch spec.Kind {
	case repo.KindDir:
		return spec.Path
	case repo.KindSSH:
		host := spec.Host
		if spec.Port != 0 {
			host = fmt.Sprintf("%s:%d", spec.Host, spec.Port)
		}
		return fmt.Sprintf("%s@%s:%s", spec.User, host, spec.RemotePath)
	default:
		return ""
	}
}

func newRepoAddCommand() *cobra.Command {
	var (
		spec      repo.Spec
		kind      string
		asDefault bool
		first     bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a repository",
		Example: `  # Local recipe tree, made the highest-precedence default
  storm repo add core --kind dir --path /srv/recipes --default --first

  # Remote tree over SSH
  storm repo add extra --kind ssh --host pkgs.example.com \
    --user storm --remote-path /srv/recipes --default`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cfg, err := loadRepoConfig()
			if err != nil {
				return err
			}

			spec.Kind = repo.Kind(strings.ToLower(kind))
			if spec.Kind == repo.KindDir && spec.Path != "" {
				abs, err := filepath.Abs(spec.Path)
				if err != nil {
					return err
				}
				spec.Path = abs
			}
			// Reject bad specs before they land in the config file.
			if _, err := repo.NewBackend(args[0], spec); err != nil {
				return err
			}
			if err := cfg.Repo.Add(args[0], spec, asDefault, first); err != nil {
				return err
			}
			return config.Save(path, cfg)
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "dir", "backend kind (dir, ssh, dummy)")
	cmd.Flags().StringVar(&spec.Path, "path", "", "recipe tree path (dir)")
	cmd.Flags().StringVar(&spec.Host, "host", "", "remote host (ssh)")
	cmd.Flags().IntVar(&spec.Port, "port", 0, "remote port (ssh, default 22)")
	cmd.Flags().StringVar(&spec.User, "user", "", "remote user (ssh)")
	cmd.Flags().StringVar(&spec.RemotePath, "remote-path", "", "recipe tree path on the remote (ssh)")
	cmd.Flags().StringVar(&spec.PrivateKeyPath, "key", "", "private key file (ssh)")
	cmd.Flags().StringVar(&spec.KnownHostsPath, "known-hosts", "", "known_hosts file for host verification (ssh)")
	cmd.Flags().BoolVarP(&asDefault, "default", "d", false, "add to the default list")
	cmd.Flags().BoolVarP(&first, "first", "f", false, "give the repository the highest precedence")

	return cmd
}

func newRepoRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cfg, err := loadRepoConfig()
			if err != nil {
				return err
			}
			if err := cfg.Repo.Remove(args[0]); err != nil {
				return err
			}
			return config.Save(path, cfg)
		},
	}
}

func newRepoRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cfg, err := loadRepoConfig()
			if err != nil {
				return err
			}
			if err := cfg.Repo.Rename(args[0], args[1]); err != nil {
				return err
			}
			return config.Save(path, cfg)
		},
	}
}

func newRepoSetDefaultCommand() *cobra.Command {
	var (
		unset bool
		first bool
	)

	cmd := &cobra.Command{
		Use:   "set-default NAME",
		Short: "Add or remove a repository from the default list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cfg, err := loadRepoConfig()
			if err != nil {
				return err
			}
			if err := cfg.Repo.SetDefault(args[0], !unset, first); err != nil {
				return err
			}
			return config.Save(path, cfg)
		},
	}

	cmd.Flags().BoolVarP(&unset, "unset", "u", false, "remove from the default list")
	cmd.Flags().BoolVarP(&first, "first", "f", false, "give the repository the highest precedence")

	return cmd
}

func newRepoSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [NAME...]",
		Short: "Sync repository recipe trees",
		Long: `Fetch the recipe trees of the named repositories into the local
cache. Without arguments every configured repository syncs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, cfg, err := loadRepoConfig()
			if err != nil {
				return err
			}

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(cmd.Context()) }()

			manager := repo.NewManager(&cfg.Repo, filepath.Join(storePath(), "repos"), tel)
			if err := manager.Sync(ctx, args...); err != nil {
				return err
			}
			fmt.Println("Repositories synced.")
			return nil
		},
	}
}
