package resolver

import (
	"fmt"
	"sort"

	"github.com/stormpkg/storm/pkg/recipe"
)

// Installed is the resolver's view of one installed package: the
// version on disk and the dependency edges it was built against.
type Installed struct {
	Version recipe.Version
	Deps    []string
}

// RequestItem is one requested operation.
type RequestItem struct {
	// Name is the package name.
	Name string

	// Constraint restricts acceptable versions for install/upgrade.
	// Ignored for remove.
	Constraint recipe.Constraint

	// Action is the requested operation.
	Action Action
}

// Request is a batch of operations resolved together.
type Request struct {
	Items []RequestItem

	// Cascade plans the removal of installed dependents alongside a
	// requested removal. When false, removing a package that another
	// installed package depends on is rejected.
	Cascade bool
}

// Resolver computes build plans. It runs single-threaded over immutable
// snapshots: the store and installed map must not change during Resolve.
type Resolver struct {
	store     *recipe.Store
	installed map[string]Installed
}

// New creates a resolver over a recipe store snapshot and an
// installed-package snapshot.
func New(store *recipe.Store, installed map[string]Installed) *Resolver {
	if installed == nil {
		installed = make(map[string]Installed)
	}
	return &Resolver{
		store:     store,
		installed: installed,
	}
}

// infeasibleError marks a dead end in the search. It triggers
// backtracking rather than aborting the whole resolution.
type infeasibleError struct {
	reason string
}

func (e *infeasibleError) Error() string {
	return e.reason
}

func infeasible(format string, args ...interface{}) error {
	return &infeasibleError{reason: fmt.Sprintf(format, args...)}
}

// searchState is one point in the backtracking search. States are
// cloned per trial assignment; backtracking is just discarding a clone.
type searchState struct {
	// candidates maps packages drawn into the problem to the versions
	// still considered possible, ordered best-first.
	candidates map[string][]recipe.Version

	// decided maps packages to their chosen version.
	decided map[string]recipe.Version

	// banned maps packages excluded by a decided recipe's conflict
	// declaration to the package that excluded them.
	banned map[string]string
}

func newSearchState() *searchState {
	return &searchState{
		candidates: make(map[string][]recipe.Version),
		decided:    make(map[string]recipe.Version),
		banned:     make(map[string]string),
	}
}

func (st *searchState) clone() *searchState {
	c := &searchState{
		candidates: make(map[string][]recipe.Version, len(st.candidates)),
		decided:    make(map[string]recipe.Version, len(st.decided)),
		banned:     make(map[string]string, len(st.banned)),
	}
	for name, versions := range st.candidates {
		c.candidates[name] = append([]recipe.Version(nil), versions...)
	}
	for name, v := range st.decided {
		c.decided[name] = v
	}
	for name, by := range st.banned {
		c.banned[name] = by
	}
	return c
}

// frame is one level of the explicit backtracking stack: the state
// before any trial at this package, plus the versions left to try.
type frame struct {
	base     *searchState
	name     string
	versions []recipe.Version
	next     int
}

// Resolve computes a build plan for the request, or a ResolutionError
// when the request is infeasible.
func (r *Resolver) Resolve(req Request) (*Plan, error) {
	removals := make(map[string]bool)
	upgrades := make(map[string]bool)

	seen := make(map[string]bool)
	for _, item := range req.Items {
		if item.Name == "" {
			return nil, NewUnsatisfiableError("request item has empty package name")
		}
		if seen[item.Name] {
			return nil, NewUnsatisfiableError("package requested more than once").
				WithPackage(item.Name)
		}
		seen[item.Name] = true

		switch item.Action {
		case ActionRemove:
			removals[item.Name] = true
		case ActionUpgrade:
			upgrades[item.Name] = true
		case ActionInstall:
		default:
			return nil, NewUnsatisfiableError(fmt.Sprintf("unknown action %q", item.Action)).
				WithPackage(item.Name)
		}
	}

	removalSet, err := r.resolveRemovals(removals, req.Cascade)
	if err != nil {
		return nil, err
	}

	state, err := r.search(req, removalSet, upgrades)
	if err != nil {
		return nil, err
	}

	return r.emit(state, removalSet)
}

// resolveRemovals expands requested removals to the removal set,
// cascading to installed dependents when allowed and rejecting the
// request when not.
func (r *Resolver) resolveRemovals(requested map[string]bool, cascade bool) (map[string]bool, error) {
	set := make(map[string]bool)
	if len(requested) == 0 {
		return set, nil
	}

	// Installed dependents per package.
	dependents := make(map[string][]string)
	for name, inst := range r.installed {
		for _, dep := range inst.Deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	queue := make([]string, 0, len(requested))
	for name := range requested {
		if _, ok := r.installed[name]; !ok {
			return nil, NewUnsatisfiableError("package is not installed").WithPackage(name)
		}
		set[name] = true
		queue = append(queue, name)
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		deps := append([]string(nil), dependents[name]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if set[dep] {
				continue
			}
			if !cascade {
				return nil, NewUnsatisfiableError("package is still required by an installed package").
					WithPackage(name).
					WithConstraint(fmt.Sprintf("%s depends on %s", dep, name))
			}
			set[dep] = true
			queue = append(queue, dep)
		}
	}

	return set, nil
}

// search runs the constraint propagation and backtracking loop.
func (r *Resolver) search(req Request, removals, upgrades map[string]bool) (*searchState, error) {
	state := newSearchState()

	// Seed request constraints. Infeasibility here is final: there is
	// nothing to backtrack over yet.
	for _, item := range req.Items {
		if item.Action == ActionRemove {
			continue
		}
		if upgrades[item.Name] {
			if _, ok := r.installed[item.Name]; !ok {
				return nil, NewUnsatisfiableError("package is not installed").
					WithPackage(item.Name)
			}
		}
		if err := r.require(state, item.Name, item.Constraint, "request", removals, upgrades); err != nil {
			if ie, ok := err.(*infeasibleError); ok {
				return nil, NewUnsatisfiableError(ie.reason).WithPackage(item.Name)
			}
			return nil, err
		}
	}

	var stack []*frame
	var lastDeadEnd string

	for {
		name := pickNext(state)
		if name == "" {
			return state, nil
		}

		stack = append(stack, &frame{
			base:     state.clone(),
			name:     name,
			versions: append([]recipe.Version(nil), state.candidates[name]...),
		})

		advanced := false
		for !advanced {
			if len(stack) == 0 {
				e := NewUnsatisfiableError("no consistent version assignment exists")
				if lastDeadEnd != "" {
					e.WithConstraint(lastDeadEnd)
				}
				return nil, e
			}

			f := stack[len(stack)-1]
			if f.next >= len(f.versions) {
				// This package is out of options; undo the parent's
				// choice and try its next version.
				stack = stack[:len(stack)-1]
				if len(stack) > 0 {
					stack[len(stack)-1].next++
				}
				continue
			}

			trial := f.base.clone()
			err := r.decide(trial, f.name, f.versions[f.next], removals, upgrades)
			if err == nil {
				state = trial
				advanced = true
				continue
			}
			if ie, ok := err.(*infeasibleError); ok {
				lastDeadEnd = fmt.Sprintf("%s@%s: %s", f.name, f.versions[f.next], ie.reason)
				f.next++
				continue
			}
			// UnknownPackage and other classified errors are fatal.
			return nil, err
		}
	}
}

// require narrows the candidate set for name by constraint, seeding it
// on first sight. origin names the package (or "request") whose
// constraint is being applied, for error context.
func (r *Resolver) require(st *searchState, name string, c recipe.Constraint, origin string, removals, upgrades map[string]bool) error {
	if removals[name] {
		return infeasible("%s requires %s, which is scheduled for removal", origin, name)
	}
	if by, ok := st.banned[name]; ok {
		return infeasible("%s requires %s, which conflicts with %s", origin, name, by)
	}

	if v, ok := st.decided[name]; ok {
		if !c.Matches(v) {
			return infeasible("%s requires %s %s, but %s is selected", origin, name, c, v)
		}
		return nil
	}

	if set, ok := st.candidates[name]; ok {
		narrowed := filterVersions(set, c)
		if len(narrowed) == 0 {
			return infeasible("%s requires %s %s, which excludes every remaining candidate", origin, name, c)
		}
		st.candidates[name] = narrowed
		return nil
	}

	seed, err := r.seedCandidates(name, upgrades)
	if err != nil {
		return err
	}
	narrowed := filterVersions(seed, c)
	if len(narrowed) == 0 {
		return infeasible("%s requires %s %s, which no available version satisfies", origin, name, c)
	}
	st.candidates[name] = narrowed
	return nil
}

// seedCandidates builds the initial candidate set for a package:
// every store version, best-first, intersected with the installed
// version unless an upgrade was requested for it.
func (r *Resolver) seedCandidates(name string, upgrades map[string]bool) ([]recipe.Version, error) {
	inst, isInstalled := r.installed[name]
	if isInstalled && !upgrades[name] {
		return []recipe.Version{inst.Version}, nil
	}

	recipes := r.store.Versions(name)
	if len(recipes) == 0 {
		return nil, NewUnknownPackageError(name)
	}

	// Store order is already newest-first; that is the trial order.
	versions := make([]recipe.Version, len(recipes))
	for i, rec := range recipes {
		versions[i] = rec.Version
	}
	return versions, nil
}

// decide fixes name at version v and propagates the constraints and
// conflicts of v's recipe.
func (r *Resolver) decide(st *searchState, name string, v recipe.Version, removals, upgrades map[string]bool) error {
	st.decided[name] = v
	delete(st.candidates, name)

	rec, ok := r.store.Lookup(name, v)
	if !ok {
		// Installed version pinned with no recipe in the store: the
		// package stays as-is and its recorded edges stand.
		return nil
	}

	for _, conflict := range rec.Conflicts {
		if _, decided := st.decided[conflict]; decided {
			return infeasible("%s conflicts with selected package %s", name, conflict)
		}
		if _, pending := st.candidates[conflict]; pending {
			return infeasible("%s conflicts with required package %s", name, conflict)
		}
		if _, isInstalled := r.installed[conflict]; isInstalled && !removals[conflict] {
			return infeasible("%s conflicts with installed package %s", name, conflict)
		}
		st.banned[conflict] = name
	}

	// Conflicts bind both ways: an installed package that declares a
	// conflict with name blocks it even when name's own recipe is
	// silent. Installed packages being removed or re-decided in this
	// search are covered by their own decide.
	for _, instName := range sortedNames(r.installed) {
		if instName == name || removals[instName] || upgrades[instName] {
			continue
		}
		if _, decided := st.decided[instName]; decided {
			continue
		}
		instRec, ok := r.store.Lookup(instName, r.installed[instName].Version)
		if !ok {
			continue
		}
		if instRec.ConflictsWith(name) {
			return infeasible("installed package %s conflicts with %s", instName, name)
		}
	}

	for _, dep := range rec.Dependencies {
		if err := r.require(st, dep.Name, dep.Constraint, name, removals, upgrades); err != nil {
			return err
		}
	}

	return nil
}

// pickNext selects the undecided package with the smallest candidate
// set, breaking ties by lexicographically smaller name.
func pickNext(st *searchState) string {
	best := ""
	bestLen := 0
	for name, versions := range st.candidates {
		if best == "" || len(versions) < bestLen || (len(versions) == bestLen && name < best) {
			best = name
			bestLen = len(versions)
		}
	}
	return best
}

func filterVersions(versions []recipe.Version, c recipe.Constraint) []recipe.Version {
	out := versions[:0:0]
	for _, v := range versions {
		if c.Matches(v) {
			out = append(out, v)
		}
	}
	return out
}

// emit converts a complete assignment plus the removal set into an
// ordered plan: removals first (dependents before dependencies), then
// installs and upgrades in topological order.
func (r *Resolver) emit(state *searchState, removalSet map[string]bool) (*Plan, error) {
	removeNodes := make(map[string]*Node, len(removalSet))
	removeEdges := make(map[string][]string, len(removalSet))
	for name := range removalSet {
		removeNodes[name] = &Node{
			Name:    name,
			Version: r.installed[name].Version,
			Action:  ActionRemove,
		}
	}
	// A package's removal waits for the removal of everything that
	// depends on it.
	for name := range removalSet {
		for _, dep := range r.installed[name].Deps {
			if removalSet[dep] {
				removeEdges[dep] = append(removeEdges[dep], name)
			}
		}
	}

	removePlan, err := newPlan(removeNodes, removeEdges)
	if err != nil {
		return nil, err
	}

	buildNodes := make(map[string]*Node)
	buildEdges := make(map[string][]string)
	for name, v := range state.decided {
		inst, isInstalled := r.installed[name]
		if isInstalled && inst.Version.Equal(v) {
			continue
		}
		action := ActionInstall
		if isInstalled {
			action = ActionUpgrade
		}
		node := &Node{
			Name:    name,
			Version: v,
			Action:  action,
		}
		if rec, ok := r.store.Lookup(name, v); ok {
			for _, dep := range rec.Dependencies {
				node.Deps = append(node.Deps, dep.Name)
			}
		}
		buildNodes[name] = node
	}
	for name, node := range buildNodes {
		for _, dep := range node.Deps {
			if _, ok := buildNodes[dep]; ok {
				buildEdges[name] = append(buildEdges[name], dep)
			}
		}
	}

	buildPlan, err := newPlan(buildNodes, buildEdges)
	if err != nil {
		return nil, err
	}

	return concatPlans(removePlan, buildPlan), nil
}

func sortedNames(m map[string]Installed) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
