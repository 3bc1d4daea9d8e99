//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// The namespace tests mount real filesystems and clone namespaces, so
// they only run as root.
func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("namespace sandbox tests require root")
	}
}

func newNamespaceEnv(t *testing.T, spec EnvSpec) *namespaceEnv {
	t.Helper()
	provider := &NamespaceProvider{BaseDir: t.TempDir()}
	env, err := provider.Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { env.Teardown() })
	return env.(*namespaceEnv)
}

func runStep(t *testing.T, env *namespaceEnv, step string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code, err := env.Run(context.Background(), step, nil, &out)
	if err != nil {
		t.Fatalf("Run(%q) error = %v", step, err)
	}
	return code, out.String()
}

func TestNamespaceProcShowsOnlySandboxProcesses(t *testing.T) {
	requireRoot(t)
	env := newNamespaceEnv(t, EnvSpec{Name: "proc", Output: "out"})

	// The step runs as PID 1 of a fresh PID namespace, the test
	// process must not appear in its proc, and the PID count stays in
	// the single digits.
	step := fmt.Sprintf(
		`test -e /proc/1/status && test ! -e /proc/%d && test "$(ls /proc | grep -c "^[0-9][0-9]*$")" -lt 5`,
		os.Getpid(),
	)
	if code, out := runStep(t, env, step); code != 0 {
		t.Errorf("proc isolation step exited %d, output:\n%s", code, out)
	}
}

func TestNamespaceWritesStayUnderSandboxRoot(t *testing.T) {
	requireRoot(t)
	env := newNamespaceEnv(t, EnvSpec{Name: "writes", Output: "out"})

	marker := fmt.Sprintf("storm-sandbox-%d", os.Getpid())
	if code, out := runStep(t, env, "echo escaped > /"+marker); code != 0 {
		t.Fatalf("write step exited %d, output:\n%s", code, out)
	}

	if _, err := os.Stat("/" + marker); !os.IsNotExist(err) {
		os.Remove("/" + marker)
		t.Fatalf("sandbox write to / reached the host root")
	}
	if _, err := os.Stat(filepath.Join(env.root, marker)); err != nil {
		t.Errorf("sandbox write not found under the scratch root: %v", err)
	}
}

func TestNamespaceBaseLayersReadOnly(t *testing.T) {
	requireRoot(t)

	layer := t.TempDir()
	if err := os.WriteFile(filepath.Join(layer, "keep"), []byte("original"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	provider := &NamespaceProvider{
		BaseDir:    t.TempDir(),
		BaseLayers: append([]string{layer}, defaultBaseLayers...),
	}
	env, err := provider.Create(context.Background(), EnvSpec{Name: "layers", Output: "out"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer env.Teardown()

	var out bytes.Buffer
	code, err := env.Run(context.Background(), "echo tampered > "+filepath.Join(layer, "keep"), nil, &out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code == 0 {
		t.Errorf("write into a read-only base layer succeeded")
	}

	data, err := os.ReadFile(filepath.Join(layer, "keep"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "original" {
		t.Errorf("host layer file changed to %q", data)
	}
}

func TestNamespaceDependenciesReadOnly(t *testing.T) {
	requireRoot(t)

	dep := t.TempDir()
	if err := os.WriteFile(filepath.Join(dep, "lib.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	env := newNamespaceEnv(t, EnvSpec{
		Name:   "deps",
		Output: "out",
		Deps:   []DepMount{{Package: "zlib", Source: dep}},
	})

	if code, out := runStep(t, env, "cat /deps/zlib/lib.txt"); code != 0 {
		t.Fatalf("dependency read exited %d, output:\n%s", code, out)
	} else if !strings.Contains(out, "v1") {
		t.Errorf("dependency read output = %q, want v1", out)
	}
	if code, _ := runStep(t, env, "echo v2 > /deps/zlib/lib.txt"); code == 0 {
		t.Errorf("write into a dependency mount succeeded")
	}

	data, err := os.ReadFile(filepath.Join(dep, "lib.txt"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("dependency source changed to %q", data)
	}
}

func TestNamespaceTeardownRemovesRoot(t *testing.T) {
	requireRoot(t)
	env := newNamespaceEnv(t, EnvSpec{Name: "teardown", Output: "out"})
	root := env.root

	if code, out := runStep(t, env, "echo done > $STORM_OUT/marker"); code != 0 {
		t.Fatalf("step exited %d, output:\n%s", code, out)
	}
	if err := env.Teardown(); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("sandbox root %s still present after teardown", root)
	}
}
