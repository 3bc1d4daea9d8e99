package pkgdb

import (
	"time"

	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/sandbox"
)

// InstalledPackage is one committed package record: what is installed,
// where its artifact lives, and which packages it depends on.
type InstalledPackage struct {
	// Name is the package name. At most one version of a package is
	// installed at a time.
	Name string `json:"name"`

	// Version is the installed version.
	Version recipe.Version `json:"version"`

	// Path is the artifact tree in the package store.
	Path string `json:"path"`

	// Manifest lists the artifact's files with content hashes.
	Manifest []sandbox.ManifestEntry `json:"manifest"`

	// Deps are the names of the packages this one resolved against.
	// Every entry must itself be installed; commits enforce this.
	Deps []string `json:"deps"`

	// TxnID is the transaction that installed this record.
	TxnID string `json:"txn_id"`

	// InstalledAt is when the installing transaction committed.
	InstalledAt time.Time `json:"installed_at"`
}

// ChangeSet is the full effect of one transaction on the database:
// removals applied first, then installs. An install of an
// already-present name replaces the existing record.
type ChangeSet struct {
	Remove  []string
	Install []InstalledPackage
}

// IsEmpty reports whether the change set changes nothing.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Remove) == 0 && len(c.Install) == 0
}

// JournalEntry is one append-only event recorded against a
// transaction: resolutions, builds, commits, aborts.
type JournalEntry struct {
	ID        int64     `json:"id"`
	TxnID     string    `json:"txn_id"`
	Type      string    `json:"type"`
	Package   string    `json:"package,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal entry types.
const (
	JournalResolved  = "resolved"
	JournalBuilt     = "built"
	JournalCommitted = "committed"
	JournalAborted   = "aborted"
)
