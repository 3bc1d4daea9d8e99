package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  "error",
		Format: "json",
		Output: "stderr",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return logger
}

func newTestExecutor(t *testing.T, timeout time.Duration) (*Executor, *FakeProvider) {
	t.Helper()
	provider := &FakeProvider{BaseDir: t.TempDir()}
	return NewExecutor(provider, timeout, testLogger(t)), provider
}

func buildRecipe(name, version string, steps ...string) *recipe.Recipe {
	v, _ := recipe.ParseVersion(version)
	return &recipe.Recipe{
		Name:    name,
		Version: v,
		Steps:   steps,
		Output:  "out",
	}
}

func TestExecuteSuccess(t *testing.T) {
	exec, provider := newTestExecutor(t, 0)

	rec := buildRecipe("zlib", "1.3",
		`echo building`,
		`mkdir -p "$STORM_OUT/lib"`,
		`printf hello > "$STORM_OUT/lib/libz.so"`,
	)
	outDir := filepath.Join(t.TempDir(), "store", "zlib-1.3")

	artifact, err := exec.Execute(context.Background(), rec, nil, outDir)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if artifact.Node != "zlib-1.3" {
		t.Errorf("artifact.Node = %q, want %q", artifact.Node, "zlib-1.3")
	}
	data, err := os.ReadFile(filepath.Join(outDir, "lib", "libz.so"))
	if err != nil {
		t.Fatalf("artifact file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("artifact content = %q, want %q", data, "hello")
	}
	if !strings.Contains(artifact.Log, "building") {
		t.Errorf("artifact log %q does not contain step output", artifact.Log)
	}

	var found bool
	for _, entry := range artifact.Manifest {
		if entry.Path == "lib/libz.so" {
			found = true
			if entry.Hash == "" {
				t.Error("manifest entry for regular file has no hash")
			}
		}
	}
	if !found {
		t.Errorf("manifest %v does not list lib/libz.so", artifact.Manifest)
	}

	if provider.TornDownCount() != 1 {
		t.Errorf("TornDownCount() = %d, want 1", provider.TornDownCount())
	}
}

func TestExecuteDependenciesVisible(t *testing.T) {
	exec, _ := newTestExecutor(t, 0)

	depDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(depDir, "header.h"), []byte("int x;"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := buildRecipe("app", "1.0",
		`cp "$STORM_DEPS/libfoo/header.h" "$STORM_OUT/header.h"`,
	)
	outDir := filepath.Join(t.TempDir(), "app-1.0")

	deps := []DepMount{{Package: "libfoo", Source: depDir}}
	if _, err := exec.Execute(context.Background(), rec, deps, outDir); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "header.h"))
	if err != nil {
		t.Fatalf("dependency file was not copied through the build: %v", err)
	}
	if string(data) != "int x;" {
		t.Errorf("copied content = %q, want %q", data, "int x;")
	}
}

func TestExecuteStepFailed(t *testing.T) {
	exec, provider := newTestExecutor(t, 0)

	rec := buildRecipe("broken", "0.1",
		`echo first step ok`,
		`echo about to fail; exit 3`,
		`echo never reached`,
	)
	outDir := filepath.Join(t.TempDir(), "broken-0.1")

	_, err := exec.Execute(context.Background(), rec, nil, outDir)
	if !IsStepFailed(err) {
		t.Fatalf("Execute() error = %v, want step failure", err)
	}

	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("error %v is not a *BuildError", err)
	}
	if buildErr.Step != 1 {
		t.Errorf("Step = %d, want 1", buildErr.Step)
	}
	if buildErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", buildErr.ExitCode)
	}
	if !strings.Contains(buildErr.Output, "first step ok") {
		t.Errorf("Output %q does not contain prior step output", buildErr.Output)
	}
	if buildErr.Package != "broken-0.1" {
		t.Errorf("Package = %q, want %q", buildErr.Package, "broken-0.1")
	}

	// No artifact directory may be left behind on failure.
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Errorf("artifact directory exists after failed build")
	}
	if provider.TornDownCount() != 1 {
		t.Errorf("TornDownCount() = %d, want 1", provider.TornDownCount())
	}
}

func TestExecuteTimeout(t *testing.T) {
	exec, provider := newTestExecutor(t, 100*time.Millisecond)

	rec := buildRecipe("slow", "1.0", `sleep 10`)
	outDir := filepath.Join(t.TempDir(), "slow-1.0")

	start := time.Now()
	_, err := exec.Execute(context.Background(), rec, nil, outDir)
	if !IsTimeout(err) {
		t.Fatalf("Execute() error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timed-out build took %v, expected prompt termination", elapsed)
	}
	if provider.TornDownCount() != 1 {
		t.Errorf("TornDownCount() = %d, want 1", provider.TornDownCount())
	}
}

func TestExecuteExtraEnv(t *testing.T) {
	exec, _ := newTestExecutor(t, 0)

	rec := buildRecipe("envy", "1.0", `printf '%s' "$PREFIX" > "$STORM_OUT/prefix"`)
	rec.Env = map[string]string{"PREFIX": "/usr/local"}
	outDir := filepath.Join(t.TempDir(), "envy-1.0")

	if _, err := exec.Execute(context.Background(), rec, nil, outDir); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "prefix"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "/usr/local" {
		t.Errorf("PREFIX in build = %q, want %q", data, "/usr/local")
	}
}

func TestExecuteScratchExcludedFromArtifact(t *testing.T) {
	exec, _ := newTestExecutor(t, 0)

	rec := buildRecipe("tidy", "1.0",
		`printf scratch > "$STORM_WORK/intermediate.o"`,
		`printf keep > "$STORM_OUT/bin"`,
	)
	outDir := filepath.Join(t.TempDir(), "tidy-1.0")

	artifact, err := exec.Execute(context.Background(), rec, nil, outDir)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(artifact.Manifest) != 1 || artifact.Manifest[0].Path != "bin" {
		t.Errorf("manifest = %v, want exactly [bin]", artifact.Manifest)
	}
	if _, err := os.Stat(filepath.Join(outDir, "intermediate.o")); !os.IsNotExist(err) {
		t.Error("scratch file leaked into the artifact")
	}
}

func TestExecuteTeardownAlways(t *testing.T) {
	exec, provider := newTestExecutor(t, 200*time.Millisecond)

	base := t.TempDir()
	recipes := []*recipe.Recipe{
		buildRecipe("good", "1.0", `printf ok > "$STORM_OUT/f"`),
		buildRecipe("bad", "1.0", `exit 1`),
		buildRecipe("stuck", "1.0", `sleep 10`),
	}
	for i, rec := range recipes {
		outDir := filepath.Join(base, rec.ID())
		_, err := exec.Execute(context.Background(), rec, nil, outDir)
		if i == 0 && err != nil {
			t.Fatalf("Execute(%s) error = %v", rec.ID(), err)
		}
		if i > 0 && err == nil {
			t.Fatalf("Execute(%s) succeeded, want error", rec.ID())
		}
	}

	if provider.CreatedCount() != len(recipes) {
		t.Fatalf("CreatedCount() = %d, want %d", provider.CreatedCount(), len(recipes))
	}
	if provider.TornDownCount() != provider.CreatedCount() {
		t.Errorf("TornDownCount() = %d, want %d", provider.TornDownCount(), provider.CreatedCount())
	}
}
