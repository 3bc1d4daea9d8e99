package pkgdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/sandbox"
)

// setupTestDB creates a temp-dir SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "storm.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func installed(t *testing.T, name, version string, deps ...string) InstalledPackage {
	t.Helper()
	v, err := recipe.ParseVersion(version)
	if err != nil {
		t.Fatalf("ParseVersion(%q) error = %v", version, err)
	}
	return InstalledPackage{
		Name:    name,
		Version: v,
		Path:    "/var/lib/storm/pkgs/" + name + "-" + version,
		Manifest: []sandbox.ManifestEntry{
			{Path: "bin/" + name, Hash: "0000", Mode: 0o755},
		},
		Deps: deps,
	}
}

func TestDBLifecycle(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "storm.db")})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	ctx := context.Background()
	if err := db.Init(ctx); err != nil {
		t.Fatalf("failed to initialize database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}
}

func TestCommitAndSnapshot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	changes := ChangeSet{
		Install: []InstalledPackage{
			installed(t, "zlib", "1.3"),
			installed(t, "libpng", "1.6", "zlib"),
		},
	}
	if err := db.Commit(ctx, "txn-1", changes); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	snapshot, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("snapshot has %d packages, want 2", len(snapshot))
	}
	if snapshot[0].Name != "libpng" || snapshot[1].Name != "zlib" {
		t.Errorf("snapshot order = [%s %s], want [libpng zlib]", snapshot[0].Name, snapshot[1].Name)
	}
	if len(snapshot[0].Deps) != 1 || snapshot[0].Deps[0] != "zlib" {
		t.Errorf("libpng deps = %v, want [zlib]", snapshot[0].Deps)
	}

	pkg, err := db.Get(ctx, "libpng")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if pkg.Version.String() != "1.6" {
		t.Errorf("version = %s, want 1.6", pkg.Version)
	}
	if pkg.TxnID != "txn-1" {
		t.Errorf("txn id = %s, want txn-1", pkg.TxnID)
	}
	if len(pkg.Manifest) != 1 || pkg.Manifest[0].Path != "bin/libpng" {
		t.Errorf("manifest = %v", pkg.Manifest)
	}
}

func TestCommitAdvancesMarker(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, seq, err := db.LastTxn(ctx)
	if err != nil {
		t.Fatalf("LastTxn() error = %v", err)
	}
	if id != "" || seq != 0 {
		t.Fatalf("fresh database LastTxn() = (%q, %d), want empty", id, seq)
	}

	if err := db.Commit(ctx, "txn-1", ChangeSet{Install: []InstalledPackage{installed(t, "a", "1.0")}}); err != nil {
		t.Fatal(err)
	}
	if err := db.Commit(ctx, "txn-2", ChangeSet{Install: []InstalledPackage{installed(t, "b", "1.0")}}); err != nil {
		t.Fatal(err)
	}

	id, seq, err = db.LastTxn(ctx)
	if err != nil {
		t.Fatalf("LastTxn() error = %v", err)
	}
	if id != "txn-2" || seq != 2 {
		t.Errorf("LastTxn() = (%q, %d), want (txn-2, 2)", id, seq)
	}
}

func TestCommitReplacesExistingVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Commit(ctx, "txn-1", ChangeSet{Install: []InstalledPackage{installed(t, "zlib", "1.2")}}); err != nil {
		t.Fatal(err)
	}
	if err := db.Commit(ctx, "txn-2", ChangeSet{Install: []InstalledPackage{installed(t, "zlib", "1.3")}}); err != nil {
		t.Fatal(err)
	}

	snapshot, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("snapshot has %d packages, want 1", len(snapshot))
	}
	if snapshot[0].Version.String() != "1.3" {
		t.Errorf("version = %s, want 1.3", snapshot[0].Version)
	}
}

func TestCommitRemove(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Commit(ctx, "txn-1", ChangeSet{
		Install: []InstalledPackage{
			installed(t, "zlib", "1.3"),
			installed(t, "libpng", "1.6", "zlib"),
		},
	}); err != nil {
		t.Fatal(err)
	}

	// Removing both in one transaction is fine; no edge survives.
	if err := db.Commit(ctx, "txn-2", ChangeSet{Remove: []string{"libpng", "zlib"}}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	snapshot, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 0 {
		t.Errorf("snapshot = %v, want empty", snapshot)
	}

	if _, err := db.Get(ctx, "zlib"); !IsNotFound(err) {
		t.Errorf("Get(zlib) error = %v, want not-found", err)
	}
}

func TestCommitRejectsDanglingEdge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Commit(ctx, "txn-1", ChangeSet{
		Install: []InstalledPackage{
			installed(t, "zlib", "1.3"),
			installed(t, "libpng", "1.6", "zlib"),
		},
	}); err != nil {
		t.Fatal(err)
	}

	// Removing only zlib would leave libpng's edge dangling.
	err := db.Commit(ctx, "txn-2", ChangeSet{Remove: []string{"zlib"}})
	if !IsDanglingEdge(err) {
		t.Fatalf("Commit() error = %v, want dangling edge", err)
	}

	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("error %v is not a *StoreError", err)
	}
	if storeErr.Package != "libpng" || storeErr.Edge != "zlib" {
		t.Errorf("edge = %s -> %s, want libpng -> zlib", storeErr.Package, storeErr.Edge)
	}

	// The previous snapshot must be intact.
	snapshot, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 2 {
		t.Errorf("snapshot has %d packages after failed commit, want 2", len(snapshot))
	}
	if _, seq, _ := db.LastTxn(ctx); seq != 1 {
		t.Errorf("marker advanced to %d on failed commit", seq)
	}
}

func TestCommitRejectsInstallWithMissingDep(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Commit(ctx, "txn-1", ChangeSet{
		Install: []InstalledPackage{installed(t, "libpng", "1.6", "zlib")},
	})
	if !IsDanglingEdge(err) {
		t.Fatalf("Commit() error = %v, want dangling edge", err)
	}

	snapshot, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 0 {
		t.Errorf("snapshot = %v after failed commit, want empty", snapshot)
	}
}

func TestDependents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Commit(ctx, "txn-1", ChangeSet{
		Install: []InstalledPackage{
			installed(t, "zlib", "1.3"),
			installed(t, "libpng", "1.6", "zlib"),
			installed(t, "imagemagick", "7.1", "libpng", "zlib"),
		},
	}); err != nil {
		t.Fatal(err)
	}

	dependents, err := db.Dependents(ctx, "zlib")
	if err != nil {
		t.Fatalf("Dependents() error = %v", err)
	}
	want := []string{"imagemagick", "libpng"}
	if len(dependents) != len(want) {
		t.Fatalf("Dependents(zlib) = %v, want %v", dependents, want)
	}
	for i := range want {
		if dependents[i] != want[i] {
			t.Errorf("Dependents(zlib)[%d] = %s, want %s", i, dependents[i], want[i])
		}
	}
}

func TestJournal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entries := []*JournalEntry{
		{TxnID: "txn-1", Type: JournalResolved, Message: "resolved 2 packages"},
		{TxnID: "txn-1", Type: JournalBuilt, Package: "zlib", Message: "built zlib-1.3"},
		{TxnID: "txn-1", Type: JournalCommitted, Message: "committed"},
		{TxnID: "txn-2", Type: JournalAborted, Message: "build failed"},
	}
	for _, entry := range entries {
		if err := db.AppendJournal(ctx, entry); err != nil {
			t.Fatalf("AppendJournal() error = %v", err)
		}
		if entry.ID == 0 {
			t.Error("journal entry ID not assigned")
		}
	}

	got, err := db.ListJournal(ctx, "txn-1", 10)
	if err != nil {
		t.Fatalf("ListJournal() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListJournal(txn-1) returned %d entries, want 3", len(got))
	}
	// Newest first.
	if got[0].Type != JournalCommitted {
		t.Errorf("first entry type = %s, want %s", got[0].Type, JournalCommitted)
	}

	all, err := db.ListJournal(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("ListJournal(all) returned %d entries, want 4", len(all))
	}
}
