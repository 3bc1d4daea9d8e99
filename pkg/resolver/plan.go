package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stormpkg/storm/pkg/recipe"
)

// Action is the operation a plan node performs.
type Action string

const (
	// ActionInstall builds and installs a package not currently installed.
	ActionInstall Action = "install"

	// ActionUpgrade replaces an installed package with another version.
	ActionUpgrade Action = "upgrade"

	// ActionRemove deletes an installed package.
	ActionRemove Action = "remove"
)

// Node is one resolved action of a build plan. Nodes are immutable
// after plan construction.
type Node struct {
	// Name is the package name. Unique within a plan.
	Name string `json:"name"`

	// Version is the chosen version: the version to build for
	// install/upgrade, the installed version for remove.
	Version recipe.Version `json:"version"`

	// Action is the operation kind.
	Action Action `json:"action"`

	// Requires lists names of plan nodes that must complete before
	// this one starts.
	Requires []string `json:"requires,omitempty"`

	// Deps lists the resolved dependency package names, in recipe
	// declaration order. Unlike Requires it includes dependencies that
	// were already installed and needed no action; this is what gets
	// recorded as the package's edge list on commit.
	Deps []string `json:"deps,omitempty"`
}

// ID returns the canonical "name-version" identity of the node.
func (n *Node) ID() string {
	return fmt.Sprintf("%s-%s", n.Name, n.Version)
}

// Plan is an ordered sequence of resolved actions. Nodes appear in a
// valid execution order: removals first, dependents before their
// dependencies; then installs and upgrades in topological order,
// dependencies before dependents.
type Plan struct {
	Nodes []Node `json:"nodes"`

	// levels groups node indices by execution level. Nodes at the same
	// level have no dependency relation and may run concurrently.
	levels [][]int
}

// Lookup returns the node for a package name.
func (p *Plan) Lookup(name string) (*Node, bool) {
	for i := range p.Nodes {
		if p.Nodes[i].Name == name {
			return &p.Nodes[i], true
		}
	}
	return nil, false
}

// IsEmpty reports whether the plan contains no actions.
func (p *Plan) IsEmpty() bool {
	return len(p.Nodes) == 0
}

// Levels returns the execution levels of the plan. Each level holds
// nodes that may execute concurrently once every earlier level is done.
func (p *Plan) Levels() [][]*Node {
	out := make([][]*Node, len(p.levels))
	for i, level := range p.levels {
		out[i] = make([]*Node, len(level))
		for j, idx := range level {
			out[i][j] = &p.Nodes[idx]
		}
	}
	return out
}

// String renders the plan one action per line.
func (p *Plan) String() string {
	var sb strings.Builder
	for i := range p.Nodes {
		n := &p.Nodes[i]
		fmt.Fprintf(&sb, "%s %s@%s\n", n.Action, n.Name, n.Version)
	}
	return sb.String()
}

// newPlan orders nodes and computes execution levels. edges maps a node
// name to the names it requires; every edge endpoint must be a node.
func newPlan(nodes map[string]*Node, edges map[string][]string) (*Plan, error) {
	if len(nodes) == 0 {
		return &Plan{}, nil
	}

	// Dependents per node, and incoming-edge counts.
	dependents := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for name := range nodes {
		inDegree[name] = 0
	}
	for name, reqs := range edges {
		for _, req := range reqs {
			if _, ok := nodes[req]; !ok {
				return nil, fmt.Errorf("plan edge references non-existent node %s", req)
			}
			dependents[req] = append(dependents[req], name)
			inDegree[name]++
		}
	}

	if err := detectCycles(nodes, dependents); err != nil {
		return nil, err
	}

	// Kahn's algorithm with level tracking. Levels are sorted by name
	// so the emitted order is reproducible.
	currentLevel := make([]string, 0)
	for name, degree := range inDegree {
		if degree == 0 {
			currentLevel = append(currentLevel, name)
		}
	}

	plan := &Plan{}
	processed := 0
	for len(currentLevel) > 0 {
		sort.Strings(currentLevel)

		levelIdx := make([]int, 0, len(currentLevel))
		for _, name := range currentLevel {
			n := nodes[name]
			n.Requires = append([]string(nil), edges[name]...)
			sort.Strings(n.Requires)
			plan.Nodes = append(plan.Nodes, *n)
			levelIdx = append(levelIdx, len(plan.Nodes)-1)
		}
		plan.levels = append(plan.levels, levelIdx)
		processed += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, name := range currentLevel {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					nextLevel = append(nextLevel, dep)
				}
			}
		}
		currentLevel = nextLevel
	}

	// Unreachable if cycle detection worked.
	if processed != len(nodes) {
		return nil, fmt.Errorf("failed to order all plan nodes")
	}

	return plan, nil
}

// concatPlans appends b's nodes and levels after a's, so removal
// phases always complete before build phases start.
func concatPlans(a, b *Plan) *Plan {
	out := &Plan{}
	out.Nodes = append(out.Nodes, a.Nodes...)
	out.levels = append(out.levels, a.levels...)

	offset := len(a.Nodes)
	out.Nodes = append(out.Nodes, b.Nodes...)
	for _, level := range b.levels {
		shifted := make([]int, len(level))
		for i, idx := range level {
			shifted[i] = idx + offset
		}
		out.levels = append(out.levels, shifted)
	}
	return out
}

// detectCycles uses depth-first search over the requires graph.
func detectCycles(nodes map[string]*Node, dependents map[string][]string) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	// Deterministic traversal order so the reported cycle is stable.
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !visited[name] {
			if cycle := visitCycle(name, dependents, visited, recStack, nil); cycle != nil {
				return NewCyclicDependencyError(cycle)
			}
		}
	}
	return nil
}

func visitCycle(name string, dependents map[string][]string, visited, recStack map[string]bool, path []string) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	next := append([]string(nil), dependents[name]...)
	sort.Strings(next)
	for _, dep := range next {
		if !visited[dep] {
			if cycle := visitCycle(dep, dependents, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, id := range path {
				if id == dep {
					return append(path[i:], dep)
				}
			}
		}
	}

	recStack[name] = false
	return nil
}
