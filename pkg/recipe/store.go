package recipe

import (
	"fmt"
	"sort"
)

// Store is the in-memory index of available recipes, keyed by package
// name with versions held newest-first. It is populated by the parser
// before a resolution starts and is read-only afterwards.
type Store struct {
	recipes map[string][]*Recipe
}

// NewStore creates an empty recipe store.
func NewStore() *Store {
	return &Store{recipes: make(map[string][]*Recipe)}
}

// Add indexes a recipe. Adding a second recipe for the same
// name+version is an error.
func (s *Store) Add(r *Recipe) error {
	if r.Name == "" {
		return fmt.Errorf("recipe has empty name")
	}
	if r.Version.IsZero() {
		return fmt.Errorf("recipe %s has no version", r.Name)
	}

	versions := s.recipes[r.Name]
	for _, existing := range versions {
		if existing.Version.Equal(r.Version) {
			return fmt.Errorf("duplicate recipe %s", r.ID())
		}
	}

	versions = append(versions, r)
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Version.Compare(versions[j].Version) > 0
	})
	s.recipes[r.Name] = versions

	return nil
}

// Versions returns all recipes for a package, newest first. The
// returned slice must not be mutated.
func (s *Store) Versions(name string) []*Recipe {
	return s.recipes[name]
}

// Lookup finds the recipe for an exact name+version.
func (s *Store) Lookup(name string, v Version) (*Recipe, bool) {
	for _, r := range s.recipes[name] {
		if r.Version.Equal(v) {
			return r, true
		}
	}
	return nil, false
}

// Latest returns the newest recipe for a package.
func (s *Store) Latest(name string) (*Recipe, bool) {
	versions := s.recipes[name]
	if len(versions) == 0 {
		return nil, false
	}
	return versions[0], true
}

// Has reports whether any version of the package exists.
func (s *Store) Has(name string) bool {
	return len(s.recipes[name]) > 0
}

// Names returns all package names in the store, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.recipes))
	for name := range s.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of recipes across all packages.
func (s *Store) Len() int {
	n := 0
	for _, versions := range s.recipes {
		n += len(versions)
	}
	return n
}
