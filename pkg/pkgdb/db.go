package pkgdb

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/sandbox"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the installed-package database. All mutation goes through
// Commit; readers always see the latest committed snapshot.
type DB struct {
	db   *sql.DB
	path string
}

// Config holds database configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New creates a new database instance. Init must be called before use.
func New(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &DB{path: cfg.Path}, nil
}

// Open is a convenience that creates, initializes, and migrates a
// database in one call.
func Open(ctx context.Context, path string) (*DB, error) {
	d, err := New(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := d.Init(ctx); err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Init opens the database connection and enables WAL mode.
func (d *DB) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", d.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	d.db = db
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (d *DB) Migrate(_ context.Context) error {
	if d.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(d.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (d *DB) HealthCheck(ctx context.Context) error {
	if d.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return d.db.PingContext(ctx)
}

// Commit atomically applies a change set and advances the transaction
// marker. The whole batch lands in one serializable SQL transaction:
// either every removal and install is visible, or none is. Before the
// transaction commits, the post-commit record set is checked for
// dependency edges pointing at packages that are not installed; a
// dangling edge aborts the commit with the previous snapshot intact.
func (d *DB) Commit(ctx context.Context, txnID string, changes ChangeSet) error {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return NewCommitIOError("failed to begin commit transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	// Removals first: an upgrade removes the old record before the
	// new one is inserted.
	for _, name := range changes.Remove {
		if _, err := tx.ExecContext(ctx, `DELETE FROM packages WHERE name = ?`, name); err != nil {
			return NewCommitIOError("failed to remove package record", err)
		}
	}

	for _, pkg := range changes.Install {
		manifest, err := json.Marshal(pkg.Manifest)
		if err != nil {
			return NewCommitIOError("failed to encode manifest", err)
		}

		// Replacing an installed version drops its old edges too.
		if _, err := tx.ExecContext(ctx, `DELETE FROM packages WHERE name = ?`, pkg.Name); err != nil {
			return NewCommitIOError("failed to replace package record", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO packages (name, version, path, manifest, txn_id, installed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, pkg.Name, pkg.Version.String(), pkg.Path, string(manifest), txnID, now)
		if err != nil {
			return NewCommitIOError("failed to insert package record", err)
		}

		for _, dep := range pkg.Deps {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO edges (package, dep) VALUES (?, ?)
			`, pkg.Name, dep)
			if err != nil {
				return NewCommitIOError("failed to insert dependency edge", err)
			}
		}
	}

	// No-dangling-edge check over the post-commit record set.
	var from, to string
	err = tx.QueryRowContext(ctx, `
		SELECT e.package, e.dep
		FROM edges e
		LEFT JOIN packages p ON p.name = e.dep
		WHERE p.name IS NULL
		LIMIT 1
	`).Scan(&from, &to)
	switch {
	case err == nil:
		return NewDanglingEdgeError(from, to)
	case err != sql.ErrNoRows:
		return NewCommitIOError("failed to verify dependency edges", err)
	}

	// Advance the transaction marker.
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM txns`).Scan(&seq); err != nil {
		return NewCommitIOError("failed to read transaction marker", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO txns (id, seq, committed_at) VALUES (?, ?, ?)
	`, txnID, seq, now); err != nil {
		return NewCommitIOError("failed to record transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return NewCommitIOError("failed to commit transaction", err)
	}
	return nil
}

// Get retrieves one installed package record.
func (d *DB) Get(ctx context.Context, name string) (*InstalledPackage, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT name, version, path, manifest, txn_id, installed_at
		FROM packages
		WHERE name = ?
	`, name)

	pkg, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package: %w", err)
	}

	deps, err := d.depsOf(ctx, name)
	if err != nil {
		return nil, err
	}
	pkg.Deps = deps
	return pkg, nil
}

// Snapshot returns all installed package records, sorted by name,
// with their dependency edges loaded.
func (d *DB) Snapshot(ctx context.Context) ([]*InstalledPackage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT name, version, path, manifest, txn_id, installed_at
		FROM packages
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer rows.Close()

	pkgs := []*InstalledPackage{}
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packages: %w", err)
	}

	edges, err := d.allEdges(ctx)
	if err != nil {
		return nil, err
	}
	for _, pkg := range pkgs {
		pkg.Deps = edges[pkg.Name]
	}
	return pkgs, nil
}

// Dependents returns the names of installed packages that depend on
// name, sorted.
func (d *DB) Dependents(ctx context.Context, name string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT package FROM edges WHERE dep = ? ORDER BY package ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependents: %w", err)
	}
	defer rows.Close()

	var dependents []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("failed to scan dependent: %w", err)
		}
		dependents = append(dependents, dep)
	}
	return dependents, rows.Err()
}

// LastTxn returns the identity and marker of the newest committed
// transaction. A fresh database returns ("", 0, nil).
func (d *DB) LastTxn(ctx context.Context) (string, int64, error) {
	var id string
	var seq int64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, seq FROM txns ORDER BY seq DESC LIMIT 1
	`).Scan(&id, &seq)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read last transaction: %w", err)
	}
	return id, seq, nil
}

// AppendJournal appends one event to the transaction journal.
func (d *DB) AppendJournal(ctx context.Context, entry *JournalEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO journal (txn_id, type, package, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, entry.TxnID, entry.Type, entry.Package, entry.Message, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get journal entry ID: %w", err)
	}
	entry.ID = id
	return nil
}

// ListJournal lists journal entries, newest first. Empty txnID lists
// across all transactions.
func (d *DB) ListJournal(ctx context.Context, txnID string, limit int) ([]*JournalEntry, error) {
	query := `
		SELECT id, txn_id, type, package, message, timestamp
		FROM journal
		WHERE (? = '' OR txn_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, query, txnID, txnID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	entries := []*JournalEntry{}
	for rows.Next() {
		entry := &JournalEntry{}
		var pkg sql.NullString
		if err := rows.Scan(&entry.ID, &entry.TxnID, &entry.Type, &pkg, &entry.Message, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.Package = pkg.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPackage(row rowScanner) (*InstalledPackage, error) {
	pkg := &InstalledPackage{}
	var version, manifest string
	if err := row.Scan(&pkg.Name, &version, &pkg.Path, &manifest, &pkg.TxnID, &pkg.InstalledAt); err != nil {
		return nil, err
	}

	v, err := recipe.ParseVersion(version)
	if err != nil {
		return nil, fmt.Errorf("corrupt version for %s: %w", pkg.Name, err)
	}
	pkg.Version = v

	if err := json.Unmarshal([]byte(manifest), &pkg.Manifest); err != nil {
		return nil, fmt.Errorf("corrupt manifest for %s: %w", pkg.Name, err)
	}
	if pkg.Manifest == nil {
		pkg.Manifest = []sandbox.ManifestEntry{}
	}
	return pkg, nil
}

func (d *DB) depsOf(ctx context.Context, name string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT dep FROM edges WHERE package = ? ORDER BY dep ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func (d *DB) allEdges(ctx context.Context) (map[string][]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT package, dep FROM edges ORDER BY package ASC, dep ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var pkg, dep string
		if err := rows.Scan(&pkg, &dep); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges[pkg] = append(edges[pkg], dep)
	}
	return edges, rows.Err()
}
