package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stormpkg/storm/pkg/config"
	"github.com/stormpkg/storm/pkg/coordinator"
	"github.com/stormpkg/storm/pkg/pkgdb"
	"github.com/stormpkg/storm/pkg/policy"
	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/repo"
	"github.com/stormpkg/storm/pkg/resolver"
	"github.com/stormpkg/storm/pkg/sandbox"
	"github.com/stormpkg/storm/pkg/telemetry"
)

// runtime is the assembled tool stack shared by the commands that act
// on the package store.
type runtime struct {
	storeDir string
	cfg      *config.Config
	tel      *telemetry.Telemetry
	db       *pkgdb.DB
	manager  *repo.Manager
	recipes  *recipe.Store
	coord    *coordinator.Coordinator
	policies *policy.Engine
}

// newRuntime opens the package store and wires the full stack: config,
// telemetry, package database, repositories, sandbox, coordinator, and
// policy engine.
func newRuntime(ctx context.Context) (*runtime, error) {
	storeDir := storePath()
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create package store: %w", err)
	}
	cfg, err := config.Load(config.FilePath(storeDir))
	if err != nil {
		return nil, err
	}

	tel, err := newTelemetry()
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	db, err := pkgdb.Open(ctx, filepath.Join(storeDir, "storm.db"))
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	manager := repo.NewManager(&cfg.Repo, filepath.Join(storeDir, "repos"), tel)
	recipes, err := manager.LoadStore(ctx)
	if err != nil {
		_ = db.Close()
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	provider, err := newProvider(cfg, storeDir)
	if err != nil {
		_ = db.Close()
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	timeout := time.Duration(cfg.Sandbox.BuildTimeoutSeconds) * time.Second
	executor := sandbox.NewExecutor(provider, timeout, tel.Logger)

	coord := coordinator.New(recipes, db, executor, tel, coordinator.Config{
		StoreDir:    storeDir,
		MaxParallel: cfg.Store.MaxParallel,
	})

	policies, err := policy.NewEngine(log.Logger)
	if err != nil {
		_ = db.Close()
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := policies.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			_ = db.Close()
			_ = tel.Shutdown(context.Background())
			return nil, err
		}
	}

	return &runtime{
		storeDir: storeDir,
		cfg:      cfg,
		tel:      tel,
		db:       db,
		manager:  manager,
		recipes:  recipes,
		coord:    coord,
		policies: policies,
	}, nil
}

// Close releases the runtime's resources.
func (rt *runtime) Close() {
	_ = rt.db.Close()
	_ = rt.tel.Shutdown(context.Background())
}

// newTelemetry builds the CLI telemetry stack: console logging only,
// no exporters or listeners.
func newTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "stderr"
	if verbose {
		cfg.Logging.Level = "debug"
	} else {
		cfg.Logging.Level = "warn"
	}
	cfg.Tracing.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Events.Enabled = false
	return telemetry.NewTelemetry(cfg)
}

// newProvider selects the sandbox backend.
func newProvider(cfg *config.Config, storeDir string) (sandbox.Provider, error) {
	switch cfg.Sandbox.Backend {
	case config.BackendChroot, "":
		return &sandbox.NamespaceProvider{BaseDir: filepath.Join(storeDir, "sandbox")}, nil
	default:
		return nil, fmt.Errorf("sandbox backend %q is not implemented", cfg.Sandbox.Backend)
	}
}

// installedView adapts the package database snapshot to the resolver's
// input.
func (rt *runtime) installedView(ctx context.Context) (map[string]resolver.Installed, error) {
	snapshot, err := rt.db.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	view := make(map[string]resolver.Installed, len(snapshot))
	for _, pkg := range snapshot {
		view[pkg.Name] = resolver.Installed{Version: pkg.Version, Deps: pkg.Deps}
	}
	return view, nil
}

// resolve builds a plan for the request against the loaded recipes and
// the installed snapshot.
func (rt *runtime) resolve(ctx context.Context, req resolver.Request) (*resolver.Plan, error) {
	installed, err := rt.installedView(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	plan, err := resolver.New(rt.recipes, installed).Resolve(req)
	if err != nil {
		rt.tel.Metrics.RecordResolution("failure", time.Since(start))
		return nil, err
	}
	rt.tel.Metrics.RecordResolution("success", time.Since(start))
	return plan, nil
}

// checkPolicies evaluates the plan and prints warnings. Error-severity
// violations reject the plan.
func (rt *runtime) checkPolicies(ctx context.Context, plan *resolver.Plan) error {
	result, err := rt.policies.EvaluatePlan(ctx, plan, rt.recipes)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Policy, w.Message)
	}
	if !result.Allowed {
		for _, v := range result.Violations {
			_ = rt.tel.Events.PublishPolicyViolation(v.Package, v.Policy, v.Message)
			fmt.Fprintf(os.Stderr, "policy violation: %s: %s\n", v.Policy, v.Message)
		}
		return fmt.Errorf("plan rejected by %d policy violation(s)", len(result.Violations))
	}
	return nil
}

// describePlan prints the plan's actions.
func describePlan(plan *resolver.Plan) {
	for i := range plan.Nodes {
		node := &plan.Nodes[i]
		fmt.Printf("  %-8s %s\n", node.Action, node.ID())
	}
}

// confirm prompts before applying, honoring the prompt setting and the
// --yes flag.
func (rt *runtime) confirm() bool {
	if assumeYes || !rt.cfg.CLI.Prompt {
		return true
	}
	fmt.Print("Proceed? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// applyPlan runs the full pipeline on a resolved plan: policy check,
// summary, confirmation, transactional apply, and report.
func (rt *runtime) applyPlan(ctx context.Context, plan *resolver.Plan) error {
	if plan.IsEmpty() {
		fmt.Println("Nothing to do.")
		return nil
	}
	if err := rt.checkPolicies(ctx, plan); err != nil {
		return err
	}

	describePlan(plan)
	if !rt.confirm() {
		return fmt.Errorf("aborted")
	}

	report, err := rt.coord.Apply(ctx, plan)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(report)
	}
	for _, id := range report.Installed {
		fmt.Printf("installed %s\n", id)
	}
	for _, id := range report.Removed {
		fmt.Printf("removed %s\n", id)
	}
	fmt.Printf("transaction %s committed in %s\n", report.TxnID, report.Duration.Round(time.Millisecond))
	return nil
}

// parseRequestItem parses a command-line package argument of the form
// "name", "repo:name", or "name@constraint".
func parseRequestItem(rt *runtime, arg string, action resolver.Action) (resolver.RequestItem, error) {
	spec := arg
	constraint := recipe.AnyVersion()
	if idx := strings.LastIndex(arg, "@"); idx >= 0 {
		c, err := recipe.ParseConstraint(arg[idx+1:])
		if err != nil {
			return resolver.RequestItem{}, fmt.Errorf("invalid constraint in %q: %w", arg, err)
		}
		constraint = c
		spec = arg[:idx]
	}

	ref := recipe.ParseRef(spec)
	if ref.Repo != "" {
		if err := rt.checkRef(ref); err != nil {
			return resolver.RequestItem{}, err
		}
	}
	return resolver.RequestItem{Name: ref.Name, Constraint: constraint, Action: action}, nil
}

// checkRef verifies that a repository-qualified reference matches the
// repository the loaded recipe actually came from.
func (rt *runtime) checkRef(ref recipe.Ref) error {
	if !rt.manager.Table().Has(ref.Repo) {
		return fmt.Errorf("unknown repository %q in %s", ref.Repo, ref)
	}
	for _, rec := range rt.recipes.Versions(ref.Name) {
		if rec.Repo == ref.Repo {
			return nil
		}
	}
	return fmt.Errorf("package %s not provided by repository %s", ref.Name, ref.Repo)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
