package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stormpkg/storm/pkg/pkgdb"
	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/resolver"
	"github.com/stormpkg/storm/pkg/sandbox"
	"github.com/stormpkg/storm/pkg/telemetry"
)

type fixture struct {
	coord    *Coordinator
	db       *pkgdb.DB
	recipes  *recipe.Store
	provider *sandbox.FakeProvider
	storeDir string
}

func setup(t *testing.T, recipes ...*recipe.Recipe) *fixture {
	t.Helper()

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Logging.Output = "stderr"
	cfg.Tracing.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Events.Enabled = false
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("telemetry setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	db, err := pkgdb.Open(context.Background(), filepath.Join(t.TempDir(), "storm.db"))
	if err != nil {
		t.Fatalf("database setup: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := recipe.NewStore()
	for _, r := range recipes {
		if err := store.Add(r); err != nil {
			t.Fatalf("store setup: %v", err)
		}
	}

	provider := &sandbox.FakeProvider{BaseDir: t.TempDir()}
	executor := sandbox.NewExecutor(provider, 30*time.Second, tel.Logger)

	storeDir := t.TempDir()
	coord := New(store, db, executor, tel, Config{StoreDir: storeDir, MaxParallel: 2})

	return &fixture{
		coord:    coord,
		db:       db,
		recipes:  store,
		provider: provider,
		storeDir: storeDir,
	}
}

func rcp(name, version string, steps []string, deps ...string) *recipe.Recipe {
	r := &recipe.Recipe{
		Name:    name,
		Version: recipe.MustParseVersion(version),
		Steps:   steps,
		Output:  "out",
	}
	for _, d := range deps {
		r.Dependencies = append(r.Dependencies, recipe.Dependency{
			Name:       d,
			Constraint: recipe.AnyVersion(),
		})
	}
	return r
}

// installedView adapts the database snapshot to the resolver's input.
func installedView(t *testing.T, db *pkgdb.DB) map[string]resolver.Installed {
	t.Helper()
	snapshot, err := db.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	view := make(map[string]resolver.Installed, len(snapshot))
	for _, pkg := range snapshot {
		view[pkg.Name] = resolver.Installed{Version: pkg.Version, Deps: pkg.Deps}
	}
	return view
}

func plan(t *testing.T, f *fixture, req resolver.Request) *resolver.Plan {
	t.Helper()
	p, err := resolver.New(f.recipes, installedView(t, f.db)).Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return p
}

func installReq(names ...string) resolver.Request {
	req := resolver.Request{}
	for _, n := range names {
		req.Items = append(req.Items, resolver.RequestItem{Name: n, Action: resolver.ActionInstall})
	}
	return req
}

func TestApplyInstallsDependencyChain(t *testing.T) {
	f := setup(t,
		rcp("a", "1.0", []string{`printf lib-a > "$STORM_OUT/lib-a"`}),
		rcp("b", "1.0", []string{
			`test -f "$STORM_DEPS/a/lib-a"`,
			`printf bin-b > "$STORM_OUT/bin-b"`,
		}, "a"),
	)

	report, err := f.coord.Apply(context.Background(), plan(t, f, installReq("b")))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if report.TxnID == "" {
		t.Errorf("report has empty transaction ID")
	}
	if len(report.Installed) != 2 {
		t.Fatalf("installed = %v, want a-1.0 and b-1.0", report.Installed)
	}
	if report.Installed[0] != "a-1.0" || report.Installed[1] != "b-1.0" {
		t.Errorf("installed order = %v, want [a-1.0 b-1.0]", report.Installed)
	}

	data, err := os.ReadFile(filepath.Join(f.coord.PkgDir("b-1.0"), "bin-b"))
	if err != nil {
		t.Fatalf("committed artifact missing: %v", err)
	}
	if string(data) != "bin-b" {
		t.Errorf("artifact content = %q, want %q", data, "bin-b")
	}

	pkg, err := f.db.Get(context.Background(), "b")
	if err != nil {
		t.Fatalf("Get b: %v", err)
	}
	if len(pkg.Deps) != 1 || pkg.Deps[0] != "a" {
		t.Errorf("b deps = %v, want [a]", pkg.Deps)
	}
	if pkg.Path != f.coord.PkgDir("b-1.0") {
		t.Errorf("b path = %q, want %q", pkg.Path, f.coord.PkgDir("b-1.0"))
	}
	if len(pkg.Manifest) == 0 {
		t.Errorf("b has empty manifest")
	}

	txnID, seq, err := f.db.LastTxn(context.Background())
	if err != nil {
		t.Fatalf("LastTxn: %v", err)
	}
	if txnID != report.TxnID || seq != 1 {
		t.Errorf("marker = (%s, %d), want (%s, 1)", txnID, seq, report.TxnID)
	}

	if _, err := os.Stat(filepath.Join(f.storeDir, "staging", report.TxnID)); !os.IsNotExist(err) {
		t.Errorf("staging area survived commit")
	}
	if f.provider.CreatedCount() != 2 || f.provider.TornDownCount() != 2 {
		t.Errorf("environments created=%d torndown=%d, want 2/2",
			f.provider.CreatedCount(), f.provider.TornDownCount())
	}
}

func TestApplyIndependentPackagesSameLevel(t *testing.T) {
	f := setup(t,
		rcp("a", "1.0", []string{`printf a > "$STORM_OUT/a"`}),
		rcp("c", "1.0", []string{`printf c > "$STORM_OUT/c"`}),
	)

	report, err := f.coord.Apply(context.Background(), plan(t, f, installReq("a", "c")))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.Installed) != 2 {
		t.Fatalf("installed = %v, want 2 packages", report.Installed)
	}
	for _, name := range []string{"a", "c"} {
		if _, err := f.db.Get(context.Background(), name); err != nil {
			t.Errorf("Get %s: %v", name, err)
		}
	}
}

func TestApplyBuildFailureDiscardsEverything(t *testing.T) {
	f := setup(t,
		rcp("a", "1.0", []string{`printf a > "$STORM_OUT/a"`}),
		rcp("b", "1.0", []string{"exit 7"}, "a"),
	)

	_, err := f.coord.Apply(context.Background(), plan(t, f, installReq("b")))
	if err == nil {
		t.Fatalf("expected build failure, got nil")
	}
	if !IsBuildFailed(err) {
		t.Errorf("error kind = %v, want build_failed", err)
	}
	if !sandbox.IsStepFailed(err) {
		t.Errorf("cause should unwrap to a step failure: %v", err)
	}

	snapshot, err := f.db.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 0 {
		t.Errorf("database has %d packages after failed transaction, want 0", len(snapshot))
	}
	if _, _, err := f.db.LastTxn(context.Background()); err != nil {
		t.Fatalf("LastTxn: %v", err)
	}
	if _, seq, _ := f.db.LastTxn(context.Background()); seq != 0 {
		t.Errorf("marker advanced to %d after failed transaction", seq)
	}

	if entries, _ := os.ReadDir(filepath.Join(f.storeDir, "pkgs")); len(entries) != 0 {
		t.Errorf("package store has %d entries after failed transaction", len(entries))
	}
	if entries, _ := os.ReadDir(filepath.Join(f.storeDir, "staging")); len(entries) != 0 {
		t.Errorf("staging area has %d entries after failed transaction", len(entries))
	}
	if f.provider.CreatedCount() != f.provider.TornDownCount() {
		t.Errorf("environments created=%d torndown=%d, want equal",
			f.provider.CreatedCount(), f.provider.TornDownCount())
	}
}

func TestApplyCancelledBeforeCommit(t *testing.T) {
	f := setup(t, rcp("a", "1.0", []string{`printf a > "$STORM_OUT/a"`}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coord.Apply(ctx, plan(t, f, installReq("a")))
	if err == nil {
		t.Fatalf("expected cancellation error, got nil")
	}
	if !IsCancelled(err) {
		t.Errorf("error kind = %v, want cancelled", err)
	}

	snapshot, err := f.db.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 0 {
		t.Errorf("database has %d packages after cancelled transaction, want 0", len(snapshot))
	}
}

func TestApplyRemovalCascade(t *testing.T) {
	f := setup(t,
		rcp("a", "1.0", []string{`printf a > "$STORM_OUT/a"`}),
		rcp("b", "1.0", []string{`printf b > "$STORM_OUT/b"`}, "a"),
	)

	if _, err := f.coord.Apply(context.Background(), plan(t, f, installReq("b"))); err != nil {
		t.Fatalf("Apply install: %v", err)
	}

	req := resolver.Request{
		Items:   []resolver.RequestItem{{Name: "a", Action: resolver.ActionRemove}},
		Cascade: true,
	}
	report, err := f.coord.Apply(context.Background(), plan(t, f, req))
	if err != nil {
		t.Fatalf("Apply removal: %v", err)
	}

	if len(report.Removed) != 2 {
		t.Fatalf("removed = %v, want b-1.0 then a-1.0", report.Removed)
	}
	if report.Removed[0] != "b-1.0" || report.Removed[1] != "a-1.0" {
		t.Errorf("removal order = %v, want dependents first", report.Removed)
	}

	snapshot, err := f.db.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 0 {
		t.Errorf("database has %d packages after removal, want 0", len(snapshot))
	}
	for _, id := range []string{"a-1.0", "b-1.0"} {
		if _, err := os.Stat(f.coord.PkgDir(id)); !os.IsNotExist(err) {
			t.Errorf("artifact tree for %s survived removal", id)
		}
	}

	if _, seq, err := f.db.LastTxn(context.Background()); err != nil || seq != 2 {
		t.Errorf("marker = (%d, %v), want seq 2", seq, err)
	}
}

func TestApplyUpgradeReplacesArtifact(t *testing.T) {
	f := setup(t,
		rcp("a", "1.0", []string{`printf v1 > "$STORM_OUT/a"`}),
		rcp("a", "2.0", []string{`printf v2 > "$STORM_OUT/a"`}),
	)

	req := resolver.Request{Items: []resolver.RequestItem{{
		Name:       "a",
		Action:     resolver.ActionInstall,
		Constraint: recipe.MustParseConstraint("==1.0"),
	}}}
	if _, err := f.coord.Apply(context.Background(), plan(t, f, req)); err != nil {
		t.Fatalf("Apply install: %v", err)
	}

	upgrade := resolver.Request{Items: []resolver.RequestItem{{
		Name:   "a",
		Action: resolver.ActionUpgrade,
	}}}
	report, err := f.coord.Apply(context.Background(), plan(t, f, upgrade))
	if err != nil {
		t.Fatalf("Apply upgrade: %v", err)
	}
	if len(report.Installed) != 1 || report.Installed[0] != "a-2.0" {
		t.Fatalf("installed = %v, want [a-2.0]", report.Installed)
	}

	data, err := os.ReadFile(filepath.Join(f.coord.PkgDir("a-2.0"), "a"))
	if err != nil {
		t.Fatalf("upgraded artifact missing: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("artifact content = %q, want %q", data, "v2")
	}
	if _, err := os.Stat(f.coord.PkgDir("a-1.0")); !os.IsNotExist(err) {
		t.Errorf("superseded artifact tree survived upgrade")
	}

	pkg, err := f.db.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if pkg.Version.String() != "2.0" {
		t.Errorf("installed version = %s, want 2.0", pkg.Version)
	}
}

func TestApplyEmptyPlan(t *testing.T) {
	f := setup(t, rcp("a", "1.0", []string{"true"}))

	report, err := f.coord.Apply(context.Background(), &resolver.Plan{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.Installed) != 0 || len(report.Removed) != 0 {
		t.Errorf("empty plan produced changes: %+v", report)
	}
	if _, seq, _ := f.db.LastTxn(context.Background()); seq != 0 {
		t.Errorf("marker advanced to %d for empty plan", seq)
	}
}

func TestApplyStagedDependencyVisibleWithinTransaction(t *testing.T) {
	f := setup(t,
		rcp("base", "1.0", []string{`printf base > "$STORM_OUT/marker"`}),
		rcp("mid", "1.0", []string{
			`cp "$STORM_DEPS/base/marker" "$STORM_OUT/marker"`,
		}, "base"),
		rcp("top", "1.0", []string{
			`cp "$STORM_DEPS/mid/marker" "$STORM_OUT/marker"`,
		}, "mid"),
	)

	if _, err := f.coord.Apply(context.Background(), plan(t, f, installReq("top"))); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(f.coord.PkgDir("top-1.0"), "marker"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != "base" {
		t.Errorf("marker propagated = %q, want %q", data, "base")
	}
}

func TestApplyJournal(t *testing.T) {
	f := setup(t, rcp("a", "1.0", []string{`printf a > "$STORM_OUT/a"`}))

	report, err := f.coord.Apply(context.Background(), plan(t, f, installReq("a")))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	entries, err := f.db.ListJournal(context.Background(), report.TxnID, 10)
	if err != nil {
		t.Fatalf("ListJournal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal has %d entries, want built and committed", len(entries))
	}
	if entries[0].Type != pkgdb.JournalCommitted {
		t.Errorf("newest journal entry = %s, want %s", entries[0].Type, pkgdb.JournalCommitted)
	}
	if entries[1].Type != pkgdb.JournalBuilt || entries[1].Package != "a" {
		t.Errorf("journal entry = %+v, want built a", entries[1])
	}
}
