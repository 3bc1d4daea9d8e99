package repo

import (
	"sort"
)

// Kind selects a repository backend.
type Kind string

const (
	// KindDir is a local directory of recipe files.
	KindDir Kind = "dir"

	// KindSSH is a remote recipe tree synced over SSH/SFTP.
	KindSSH Kind = "ssh"

	// KindDummy is an empty repository used in tests.
	KindDummy Kind = "dummy"
)

// Spec describes one configured repository.
type Spec struct {
	// Kind selects the backend.
	Kind Kind `yaml:"kind" json:"kind" validate:"required,oneof=dir ssh dummy"`

	// Path is the recipe tree root for dir repositories.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Host is the remote host for ssh repositories.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the SSH port. Zero means 22.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// User is the SSH username.
	User string `yaml:"user,omitempty" json:"user,omitempty"`

	// RemotePath is the recipe tree root on the remote host.
	RemotePath string `yaml:"remote_path,omitempty" json:"remote_path,omitempty"`

	// PrivateKeyPath is the SSH private key file. Empty tries the
	// default key locations.
	PrivateKeyPath string `yaml:"private_key,omitempty" json:"private_key,omitempty"`

	// KnownHostsPath enables strict host key checking against the
	// given file. Empty disables verification.
	KnownHostsPath string `yaml:"known_hosts,omitempty" json:"known_hosts,omitempty"`
}

// Table is the serializable repository configuration: the named
// repositories plus the ordered default list. The first default has
// the highest precedence.
type Table struct {
	// Default lists default repository names in precedence order.
	Default []string `yaml:"default,omitempty" json:"default,omitempty"`

	// Repos maps repository names to their specifications.
	Repos map[string]Spec `yaml:"repos,omitempty" json:"repos,omitempty"`
}

// NewTable creates an empty repository table.
func NewTable() *Table {
	return &Table{Repos: make(map[string]Spec)}
}

// List returns repository names. With onlyDefault the default list is
// returned in precedence order; otherwise all names, sorted.
func (t *Table) List(onlyDefault bool) []string {
	if onlyDefault {
		return append([]string(nil), t.Default...)
	}
	names := make([]string, 0, len(t.Repos))
	for name := range t.Repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a repository with the name exists.
func (t *Table) Has(name string) bool {
	_, ok := t.Repos[name]
	return ok
}

// Add registers a repository. With asDefault it also joins the default
// list, first or last per the precedence flag.
func (t *Table) Add(name string, spec Spec, asDefault, first bool) error {
	if name == "" {
		return NewInvalidSpecError(name, "repository name is empty")
	}
	if t.Has(name) {
		return NewDuplicateError(name)
	}
	if t.Repos == nil {
		t.Repos = make(map[string]Spec)
	}

	t.Repos[name] = spec
	if asDefault {
		if first {
			t.Default = append([]string{name}, t.Default...)
		} else {
			t.Default = append(t.Default, name)
		}
	}
	return nil
}

// Remove deletes a repository and drops it from the default list.
func (t *Table) Remove(name string) error {
	if !t.Has(name) {
		return NewNotFoundError(name)
	}
	delete(t.Repos, name)
	t.Default = without(t.Default, name)
	return nil
}

// Rename changes a repository's name, preserving its position in the
// default list.
func (t *Table) Rename(oldName, newName string) error {
	spec, ok := t.Repos[oldName]
	if !ok {
		return NewNotFoundError(oldName)
	}
	if t.Has(newName) {
		return NewDuplicateError(newName)
	}

	delete(t.Repos, oldName)
	t.Repos[newName] = spec
	for i, name := range t.Default {
		if name == oldName {
			t.Default[i] = newName
		}
	}
	return nil
}

// SetDefault adds or removes a repository from the default list. When
// adding, the precedence flag chooses first or last; an existing entry
// is repositioned.
func (t *Table) SetDefault(name string, isDefault, first bool) error {
	if !t.Has(name) {
		return NewNotFoundError(name)
	}

	t.Default = without(t.Default, name)
	if isDefault {
		if first {
			t.Default = append([]string{name}, t.Default...)
		} else {
			t.Default = append(t.Default, name)
		}
	}
	return nil
}

func without(names []string, drop string) []string {
	out := names[:0]
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}
