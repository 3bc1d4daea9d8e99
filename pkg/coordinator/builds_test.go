package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildSavesArtifactsWithoutInstalling(t *testing.T) {
	ctx := context.Background()
	f := setup(t,
		rcp("a", "1.0", []string{"echo a > $STORM_OUT/a.txt"}),
		rcp("b", "1.0", []string{"echo b > $STORM_OUT/b.txt"}, "a"),
	)

	saved, err := f.coord.Build(ctx, plan(t, f, installReq("b")))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(saved) != 2 || saved[0] != "a-1.0" || saved[1] != "b-1.0" {
		t.Errorf("saved = %v, want [a-1.0 b-1.0]", saved)
	}

	for _, id := range saved {
		if _, err := os.Stat(f.coord.PkgDir(id)); err != nil {
			t.Errorf("saved build %s missing: %v", id, err)
		}
	}

	snapshot, err := f.db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 0 {
		t.Errorf("Build() installed %d packages, want 0", len(snapshot))
	}

	if entries, err := os.ReadDir(filepath.Join(f.storeDir, "staging")); err == nil && len(entries) != 0 {
		t.Errorf("staging area not empty after Build: %d entries", len(entries))
	}
}

func TestBuiltListsSavedBuilds(t *testing.T) {
	ctx := context.Background()
	f := setup(t, rcp("a", "1.0", []string{"echo a > $STORM_OUT/a.txt"}))

	ids, err := f.coord.Built()
	if err != nil {
		t.Fatalf("Built() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("fresh store Built() = %v, want empty", ids)
	}

	if _, err := f.coord.Build(ctx, plan(t, f, installReq("a"))); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ids, err = f.coord.Built()
	if err != nil {
		t.Fatalf("Built() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "a-1.0" {
		t.Errorf("Built() = %v, want [a-1.0]", ids)
	}
}

func TestCleanReclaimsOnlyUnusedBuilds(t *testing.T) {
	ctx := context.Background()
	f := setup(t,
		rcp("a", "1.0", []string{"echo a > $STORM_OUT/a.txt"}),
		rcp("b", "1.0", []string{"echo b > $STORM_OUT/b.txt"}),
	)

	// b is installed, a is only built.
	if _, err := f.coord.Apply(ctx, plan(t, f, installReq("b"))); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := f.coord.Build(ctx, plan(t, f, installReq("a"))); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	removed, err := f.coord.Clean(ctx)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "a-1.0" {
		t.Errorf("Clean() = %v, want [a-1.0]", removed)
	}
	if _, err := os.Stat(f.coord.PkgDir("a-1.0")); !os.IsNotExist(err) {
		t.Error("unused build a-1.0 still present after Clean")
	}
	if _, err := os.Stat(f.coord.PkgDir("b-1.0")); err != nil {
		t.Errorf("installed build b-1.0 lost: %v", err)
	}
}
