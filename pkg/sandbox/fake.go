package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// FakeProvider runs builds in plain per-environment work directories
// with no namespace isolation. It exists so executor and coordinator
// logic can be exercised without namespace privileges; it must never
// be used outside tests.
type FakeProvider struct {
	// BaseDir roots all fake environments. Empty means the system
	// temp directory.
	BaseDir string

	mu       sync.Mutex
	created  int
	tornDown int
}

// CreatedCount returns how many environments the provider has created.
func (p *FakeProvider) CreatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// TornDownCount returns how many environments have been torn down.
func (p *FakeProvider) TornDownCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tornDown
}

// Create allocates a work directory with the declared output and
// dependency layout.
func (p *FakeProvider) Create(ctx context.Context, spec EnvSpec) (Environment, error) {
	root, err := os.MkdirTemp(p.BaseDir, "storm-fake-"+spec.Name+"-")
	if err != nil {
		return nil, err
	}

	work := filepath.Join(root, "work")
	outPath := filepath.Join(work, spec.Output)
	depRoot := filepath.Join(root, "deps")
	for _, dir := range []string{work, outPath, depRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			os.RemoveAll(root)
			return nil, err
		}
	}

	// Dependency trees are copied rather than mounted; read-only
	// enforcement is the real provider's concern.
	for _, dep := range spec.Deps {
		target := filepath.Join(depRoot, dep.Package)
		if err := CopyTree(dep.Source, target); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("failed to stage dependency %s: %w", dep.Package, err)
		}
	}

	p.mu.Lock()
	p.created++
	p.mu.Unlock()

	return &fakeEnv{
		provider: p,
		root:     root,
		work:     work,
		outPath:  outPath,
		depRoot:  depRoot,
	}, nil
}

type fakeEnv struct {
	provider *FakeProvider
	root     string
	work     string
	outPath  string
	depRoot  string

	mu   sync.Mutex
	done bool
}

func (e *fakeEnv) OutputPath() string {
	return e.outPath
}

func (e *fakeEnv) Run(ctx context.Context, step string, extra map[string]string, out io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", step)
	cmd.Dir = e.work
	cmd.Stdout = out
	cmd.Stderr = out

	env := append(os.Environ(),
		"STORM_OUT="+e.outPath,
		"STORM_DEPS="+e.depRoot,
		"STORM_WORK="+e.work,
	)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func (e *fakeEnv) Teardown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return nil
	}
	e.done = true

	e.provider.mu.Lock()
	e.provider.tornDown++
	e.provider.mu.Unlock()

	return os.RemoveAll(e.root)
}
