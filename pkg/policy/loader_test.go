package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testLoader(t *testing.T) *Loader {
	t.Helper()
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const regoSample = `# Rejects build steps that call sudo.
package storm.policies.sudo

import rego.v1

deny contains violation if {
	input.node
	some step in input.node.steps
	contains(step, "sudo")
	violation := {"message": "sudo in build step", "severity": "error"}
}`

func TestLoadFromFileRego(t *testing.T) {
	loader := testLoader(t)
	path := writePolicyFile(t, t.TempDir(), "no-sudo.rego", regoSample)

	policy, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}

	if policy.Name != "no-sudo" {
		t.Errorf("name = %q, want no-sudo", policy.Name)
	}
	if policy.Rego != regoSample {
		t.Errorf("rego content does not match source file")
	}
	if !policy.Enabled {
		t.Errorf("policy not enabled by default")
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("severity = %q, want default warning", policy.Severity)
	}
	if policy.Description != "Rejects build steps that call sudo." {
		t.Errorf("description = %q", policy.Description)
	}
	if policy.Source != path {
		t.Errorf("source = %q, want %q", policy.Source, path)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	loader := testLoader(t)

	def := Policy{
		Name:     "json-policy",
		Rego:     "package storm.policies.json\n\nimport rego.v1\n",
		Severity: SeverityError,
		Enabled:  true,
	}
	data, err := json.Marshal(def)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := writePolicyFile(t, t.TempDir(), "json-policy.json", string(data))

	policy, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if policy.Name != "json-policy" {
		t.Errorf("name = %q", policy.Name)
	}
	if policy.Severity != SeverityError {
		t.Errorf("severity = %q, want error", policy.Severity)
	}
	if policy.LoadedAt.IsZero() {
		t.Errorf("LoadedAt not defaulted")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := testLoader(t)
	dir := t.TempDir()

	writePolicyFile(t, dir, "one.rego", regoSample)
	writePolicyFile(t, dir, "two.rego", "package storm.policies.two\n\nimport rego.v1\n")
	writePolicyFile(t, dir, "note.txt", "not a policy")

	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePolicyFile(t, sub, "three.rego", "package storm.policies.three\n\nimport rego.v1\n")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 3 {
		t.Errorf("loaded %d policies, want 3", len(policies))
	}
}

func TestLoadFromDirectorySkipsBroken(t *testing.T) {
	loader := testLoader(t)
	dir := t.TempDir()

	writePolicyFile(t, dir, "good.rego", regoSample)
	writePolicyFile(t, dir, "broken.json", "{not json")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Errorf("loaded %d policies, want 1", len(policies))
	}
}

func TestLoadFromPathNonExistent(t *testing.T) {
	loader := testLoader(t)

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/does/not/exist"}); err == nil {
		t.Errorf("expected error for missing path")
	}
}

func TestLoadFromFileUnsupportedType(t *testing.T) {
	loader := testLoader(t)
	path := writePolicyFile(t, t.TempDir(), "policy.yaml", "name: nope")

	if _, err := loader.loadFromFile(path); err == nil {
		t.Errorf("expected error for unsupported file type")
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single comment line",
			content: "# One line.\npackage p\n",
			want:    "One line.",
		},
		{
			name:    "multi line comment",
			content: "# First.\n# Second.\npackage p\n",
			want:    "First. Second.",
		},
		{
			name:    "no comments",
			content: "package p\n",
			want:    "",
		},
		{
			name:    "comments after code ignored",
			content: "# Header.\npackage p\n# trailing\n",
			want:    "Header.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractDescription(tc.content); got != tc.want {
				t.Errorf("extractDescription = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := testLoader(t)
	path := writePolicyFile(t, t.TempDir(), "cached.rego", regoSample)

	first, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}

	// Cached: same pointer comes back.
	second, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if first != second {
		t.Errorf("cache miss on second load")
	}

	loader.ClearCache()
	third, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if first == third {
		t.Errorf("cache not cleared")
	}
}
