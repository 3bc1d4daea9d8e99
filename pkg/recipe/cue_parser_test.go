package recipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParser_ParseInline(t *testing.T) {
	parser := NewParser("core")
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantErrs  bool
		checkFunc func(*testing.T, *ParseResult)
	}{
		{
			name: "valid recipe map",
			content: `
recipes: {
	zlib: {
		version: "1.3.1"
		steps: ["./configure", "make install"]
	}
	curl: {
		version: "8.9"
		deps: [{name: "zlib", constraint: ">=1.3"}]
		network: true
		steps: ["make"]
	}
}
`,
			checkFunc: func(t *testing.T, result *ParseResult) {
				if len(result.Recipes) != 2 {
					t.Fatalf("expected 2 recipes, got %d", len(result.Recipes))
				}
				byName := map[string]*Recipe{}
				for _, r := range result.Recipes {
					byName[r.Name] = r
				}
				zlib := byName["zlib"]
				if zlib == nil || zlib.Version.String() != "1.3.1" {
					t.Errorf("zlib recipe missing or wrong version: %+v", zlib)
				}
				if zlib != nil && zlib.Repo != "core" {
					t.Errorf("expected repo tag 'core', got %q", zlib.Repo)
				}
				if zlib != nil && zlib.Output != "out" {
					t.Errorf("expected default output 'out', got %q", zlib.Output)
				}
				curl := byName["curl"]
				if curl == nil || !curl.Network {
					t.Errorf("curl recipe missing or network flag lost: %+v", curl)
				}
				if curl != nil && !curl.DependsOn("zlib") {
					t.Errorf("curl should depend on zlib")
				}
			},
		},
		{
			name: "multiple versions per package",
			content: `
recipes: {
	gcc: [
		{version: "13.2", steps: ["make"]},
		{version: "14.1", steps: ["make"]},
	]
}
`,
			checkFunc: func(t *testing.T, result *ParseResult) {
				if len(result.Recipes) != 2 {
					t.Fatalf("expected 2 recipes, got %d", len(result.Recipes))
				}
				for _, r := range result.Recipes {
					if r.Name != "gcc" {
						t.Errorf("expected name 'gcc', got %q", r.Name)
					}
				}
			},
		},
		{
			name: "recipe list form",
			content: `
recipes: [
	{name: "bash", version: "5.2", steps: ["make"]},
]
`,
			checkFunc: func(t *testing.T, result *ParseResult) {
				if len(result.Recipes) != 1 || result.Recipes[0].Name != "bash" {
					t.Fatalf("expected single bash recipe, got %+v", result.Recipes)
				}
			},
		},
		{
			name: "invalid CUE syntax",
			content: `
recipes: {
	zlib: {
		version "1.3"
	}
}
`,
			wantErrs: true,
		},
		{
			name: "missing steps",
			content: `
recipes: {
	zlib: {
		version: "1.3"
	}
}
`,
			wantErrs: true,
		},
		{
			name: "no recipes field",
			content: `
packages: {}
`,
			wantErrs: true,
		},
		{
			name: "absolute output rejected",
			content: `
recipes: {
	zlib: {
		version: "1.3"
		steps: ["make"]
		output: "/usr"
	}
}
`,
			wantErrs: true,
		},
		{
			name: "malformed constraint",
			content: `
recipes: {
	curl: {
		version: "8.9"
		deps: [{name: "zlib", constraint: "~1.3"}]
		steps: ["make"]
	}
}
`,
			wantErrs: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parser.ParseInline(ctx, tt.content)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantErrs {
				if len(result.Errors) == 0 {
					t.Errorf("expected parse errors, got none")
				}
				return
			}

			if len(result.Errors) > 0 {
				t.Fatalf("unexpected parse errors: %v", result.Errors)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestParser_ParseDirectory(t *testing.T) {
	parser := NewParser("local")
	ctx := context.Background()

	tmpDir := t.TempDir()

	cueFile := filepath.Join(tmpDir, "core.cue")
	if err := os.WriteFile(cueFile, []byte(`
recipes: {
	zlib: {
		version: "1.3"
		steps: ["make"]
	}
}
`), 0o644); err != nil {
		t.Fatalf("failed to write recipe file: %v", err)
	}

	starFile := filepath.Join(tmpDir, "gen.star")
	if err := os.WriteFile(starFile, []byte(`
recipes = [
    recipe(name = "python", version = v, steps = ["make"])
    for v in ["3.11", "3.12"]
]
`), 0o644); err != nil {
		t.Fatalf("failed to write generator file: %v", err)
	}

	// A non-recipe file should be ignored.
	if err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("notes"), 0o644); err != nil {
		t.Fatalf("failed to write readme: %v", err)
	}

	result, err := parser.Parse(ctx, []string{tmpDir})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected parse errors: %v", result.Errors)
	}
	if len(result.Recipes) != 3 {
		t.Fatalf("expected 3 recipes, got %d", len(result.Recipes))
	}
	if len(result.SourceFiles) != 2 {
		t.Errorf("expected 2 source files, got %v", result.SourceFiles)
	}
}

func TestParser_MissingSource(t *testing.T) {
	parser := NewParser("")
	if _, err := parser.Parse(context.Background(), []string{"/nonexistent/recipes"}); err == nil {
		t.Errorf("expected error for missing source")
	}
	if _, err := parser.Parse(context.Background(), nil); err == nil {
		t.Errorf("expected error for empty source list")
	}
}
