package repo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/telemetry"
)

// Manager operates over a repository table: syncing recipe trees into
// the local cache and loading the combined recipe store. Mutations go
// through the Table; the caller persists it.
type Manager struct {
	table    *Table
	cacheDir string
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
}

// NewManager creates a manager over a repository table. cacheDir roots
// the per-repository synced recipe trees.
func NewManager(table *Table, cacheDir string, tel *telemetry.Telemetry) *Manager {
	return &Manager{
		table:    table,
		cacheDir: cacheDir,
		tel:      tel,
		logger:   tel.Logger.NewComponentLogger("repo"),
	}
}

// Table returns the underlying repository table.
func (m *Manager) Table() *Table {
	return m.table
}

// RecipeDir returns the local cache directory for a repository.
func (m *Manager) RecipeDir(name string) string {
	return filepath.Join(m.cacheDir, name)
}

// Sync replicates the named repositories' recipe trees into the cache.
// With no names, every configured repository is synced.
func (m *Manager) Sync(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		names = m.table.List(false)
	}

	ctx = m.tel.WithContext(ctx)
	for _, name := range names {
		spec, ok := m.table.Repos[name]
		if !ok {
			return NewNotFoundError(name)
		}

		backend, err := NewBackend(name, spec)
		if err != nil {
			return err
		}

		log := m.logger.WithRepo(name)
		dest := m.RecipeDir(name)
		err = telemetry.RecordRepoOperation(ctx, name, "sync", func() error {
			return backend.Sync(ctx, dest)
		})
		if err != nil {
			log.WithError(err).Error("repository sync failed")
			if IsSyncFailed(err) {
				return err
			}
			return NewSyncFailedError(name, err)
		}

		count := countRecipeFiles(dest)
		_ = m.tel.Events.PublishRepoSynced(name, count)
		log.WithField("kind", string(spec.Kind)).WithField("files", count).Info("repository synced")
	}

	return nil
}

// LoadStore parses the cached recipe trees into one recipe store.
// Default repositories load first in precedence order, then the rest
// sorted by name; when two repositories carry the same recipe
// name+version the higher-precedence repository wins.
func (m *Manager) LoadStore(ctx context.Context) (*recipe.Store, error) {
	store := recipe.NewStore()

	for _, name := range m.loadOrder() {
		dir := m.RecipeDir(name)
		if !hasRecipes(dir) {
			continue
		}

		parser := recipe.NewParser(name)
		result, err := parser.Parse(ctx, []string{dir})
		if err != nil {
			return nil, NewSyncFailedError(name, err)
		}
		for _, pe := range result.Errors {
			m.logger.WithRepo(name).WithField("error", pe.Error()).Warn("skipping unparsable recipe")
		}

		for _, rec := range result.Recipes {
			if _, exists := store.Lookup(rec.Name, rec.Version); exists {
				continue
			}
			if err := store.Add(rec); err != nil {
				return nil, NewSyncFailedError(name, err)
			}
		}
	}

	return store, nil
}

// loadOrder lists repositories default-first, then the remaining
// repositories sorted.
func (m *Manager) loadOrder() []string {
	order := make([]string, 0, len(m.table.Repos))
	seen := make(map[string]bool, len(m.table.Repos))

	for _, name := range m.table.Default {
		if m.table.Has(name) && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	for _, name := range m.table.List(false) {
		if !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	return order
}

func countRecipeFiles(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isRecipeFile(d.Name()) {
			n++
		}
		return nil
	})
	return n
}

func hasRecipes(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isRecipeFile(d.Name()) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
