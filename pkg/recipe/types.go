package recipe

import (
	"fmt"
	"time"
)

// Dependency is one abstract dependency edge of a recipe: a target
// package name plus a version constraint.
type Dependency struct {
	// Name is the depended-on package name.
	Name string `json:"name"`

	// Constraint restricts which versions of the target satisfy the
	// dependency. The zero constraint accepts any version.
	Constraint Constraint `json:"-"`
}

func (d Dependency) String() string {
	if d.Constraint.IsAny() {
		return d.Name
	}
	return d.Name + " " + d.Constraint.String()
}

// Recipe is the build definition for one package version. Recipes are
// immutable once loaded; the store owns them for the duration of a run.
type Recipe struct {
	// Name is the package name.
	Name string

	// Version is the package version this recipe builds.
	Version Version

	// Repo is the repository the recipe was loaded from, if any.
	Repo string

	// Dependencies are the abstract dependency constraints, in
	// declaration order.
	Dependencies []Dependency

	// Conflicts lists package names that cannot be installed together
	// with this package.
	Conflicts []string

	// Steps are the build commands, run sequentially in the sandbox.
	Steps []string

	// Output is the directory, relative to the sandbox scratch area,
	// the build installs into. The artifact manifest is walked from
	// here.
	Output string

	// Network indicates the build requires network access. Default is
	// fully isolated.
	Network bool

	// Env is extra environment for the build steps.
	Env map[string]string

	// LoadedAt is when the recipe was parsed into the store.
	LoadedAt time.Time
}

// ID returns the canonical "name-version" identity of the recipe.
func (r *Recipe) ID() string {
	return fmt.Sprintf("%s-%s", r.Name, r.Version)
}

// DependsOn reports whether the recipe declares a dependency on name.
func (r *Recipe) DependsOn(name string) bool {
	for _, d := range r.Dependencies {
		if d.Name == name {
			return true
		}
	}
	return false
}

// ConflictsWith reports whether the recipe declares a conflict with name.
func (r *Recipe) ConflictsWith(name string) bool {
	for _, c := range r.Conflicts {
		if c == name {
			return true
		}
	}
	return false
}

// Ref is a possibly repository-qualified package reference as given on
// a request: "name" or "repo:name". The "_:name" form forces the
// default repositories even when name itself contains a colon.
type Ref struct {
	Repo string
	Name string
}

// ParseRef parses a package reference.
func ParseRef(s string) Ref {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			if s[:i] == "_" {
				return Ref{Name: s[i+1:]}
			}
			return Ref{Repo: s[:i], Name: s[i+1:]}
		}
	}
	return Ref{Name: s}
}

func (r Ref) String() string {
	if r.Repo != "" {
		return r.Repo + ":" + r.Name
	}
	return r.Name
}
