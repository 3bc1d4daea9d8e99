// Package pkgdb persists installed-package records for storm. It
// provides SQLite-based storage with WAL mode, serializable commit
// transactions that apply a whole change set or nothing, a
// monotonically advancing transaction marker, and an append-only
// journal of resolution, build, and commit events.
package pkgdb
