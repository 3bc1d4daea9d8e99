package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// RecipeConfig is the wire form of a recipe as decoded from CUE or
// produced by a Starlark generator, before constraint strings are
// parsed into structured values.
type RecipeConfig struct {
	// Name is the package name.
	Name string `json:"name" validate:"required,alphanumunicode|containsany=-_"`

	// Version is the package version string.
	Version string `json:"version" validate:"required"`

	// Deps are the dependency constraints.
	Deps []DependencyConfig `json:"deps,omitempty" validate:"dive"`

	// Conflicts lists package names this package cannot coexist with.
	Conflicts []string `json:"conflicts,omitempty"`

	// Steps are the build commands.
	Steps []string `json:"steps" validate:"required,min=1,dive,required"`

	// Output is the install directory relative to the sandbox scratch
	// area. Defaults to "out".
	Output string `json:"output,omitempty"`

	// Network requests network access for the build.
	Network bool `json:"network,omitempty"`

	// Env is extra build environment.
	Env map[string]string `json:"env,omitempty"`
}

// DependencyConfig is a single dependency entry in the wire form.
type DependencyConfig struct {
	Name       string `json:"name" validate:"required"`
	Constraint string `json:"constraint,omitempty"`
}

// ParseError is a recipe file error with source location, collected
// rather than aborting on the first problem so a whole repository can
// be reported in one pass.
type ParseError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ParseResult is the outcome of loading a set of recipe sources.
type ParseResult struct {
	Recipes     []*Recipe
	SourceFiles []string
	Errors      []ParseError
}

// Parser loads CUE recipe files into Recipe records. Recipes live
// under a top-level "recipes" field, either as a map from package name
// to one or more version definitions, or as a plain list.
type Parser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	starlark  *StarlarkEvaluator
	validator *validator.Validate
	repo      string
}

// NewParser creates a recipe parser. repo tags every loaded recipe
// with its repository name; it may be empty.
func NewParser(repo string) *Parser {
	return &Parser{
		ctx:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		starlark:  NewStarlarkEvaluator(30 * time.Second),
		validator: validator.New(),
		repo:      repo,
	}
}

// Parse loads recipes from the given files or directories. CUE files
// are unified, ".star" files are evaluated as recipe generators.
func (p *Parser) Parse(ctx context.Context, sources []string) (*ParseResult, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no recipe sources provided")
	}

	result := &ParseResult{}

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			files, err := p.collectFiles(source)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				p.parseFile(ctx, f, result)
			}
		} else {
			p.parseFile(ctx, source, result)
		}
	}

	return result, nil
}

// ParseInline parses inline CUE content, mostly for tests.
func (p *Parser) ParseInline(ctx context.Context, content string) (*ParseResult, error) {
	result := &ParseResult{SourceFiles: []string{"inline"}}

	val := p.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		result.Errors = append(result.Errors, convertCUEErrors(err)...)
		return result, nil
	}

	p.extractRecipes(val, "inline", result)
	return result, nil
}

func (p *Parser) parseFile(ctx context.Context, path string, result *ParseResult) {
	result.SourceFiles = append(result.SourceFiles, path)

	if strings.HasSuffix(path, ".star") {
		p.parseStarlarkFile(ctx, path, result)
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
		return
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		result.Errors = append(result.Errors, convertCUEErrors(err)...)
		return
	}

	p.extractRecipes(val, path, result)
}

// parseStarlarkFile evaluates a Starlark recipe generator. The script's
// "recipes" global must be a list of recipe dicts in the wire form.
func (p *Parser) parseStarlarkFile(ctx context.Context, path string, result *ParseResult) {
	content, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
		return
	}

	configs, err := p.starlark.GenerateRecipes(ctx, string(content))
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			File:    path,
			Message: fmt.Sprintf("starlark evaluation failed: %v", err),
		})
		return
	}

	for i := range configs {
		r, err := p.build(&configs[i])
		if err != nil {
			result.Errors = append(result.Errors, ParseError{
				File:    path,
				Path:    configs[i].Name,
				Message: err.Error(),
			})
			continue
		}
		result.Recipes = append(result.Recipes, r)
	}
}

// extractRecipes decodes the "recipes" field of a unified CUE value.
func (p *Parser) extractRecipes(val cue.Value, file string, result *ParseResult) {
	recipesVal := val.LookupPath(cue.ParsePath("recipes"))
	if !recipesVal.Exists() {
		result.Errors = append(result.Errors, ParseError{
			File:    file,
			Message: "no top-level \"recipes\" field",
		})
		return
	}

	switch recipesVal.Kind() {
	case cue.StructKind:
		iter, err := recipesVal.Fields(cue.All())
		if err != nil {
			result.Errors = append(result.Errors, ParseError{
				File:    file,
				Message: fmt.Sprintf("failed to iterate recipes: %v", err),
			})
			return
		}
		for iter.Next() {
			name := strings.Trim(iter.Selector().String(), `"`)
			p.extractEntry(name, iter.Value(), file, result)
		}
	case cue.ListKind:
		list, err := recipesVal.List()
		if err != nil {
			result.Errors = append(result.Errors, ParseError{
				File:    file,
				Message: fmt.Sprintf("failed to list recipes: %v", err),
			})
			return
		}
		for list.Next() {
			p.extractEntry("", list.Value(), file, result)
		}
	default:
		result.Errors = append(result.Errors, ParseError{
			File:    file,
			Message: "\"recipes\" must be a struct or a list",
		})
	}
}

// extractEntry decodes one map entry: either a single recipe struct or
// a list of version definitions for the same package.
func (p *Parser) extractEntry(name string, val cue.Value, file string, result *ParseResult) {
	if val.Kind() == cue.ListKind {
		list, err := val.List()
		if err != nil {
			result.Errors = append(result.Errors, ParseError{
				File: file, Path: name,
				Message: fmt.Sprintf("failed to list versions: %v", err),
			})
			return
		}
		for list.Next() {
			p.extractOne(name, list.Value(), file, result)
		}
		return
	}
	p.extractOne(name, val, file, result)
}

func (p *Parser) extractOne(name string, val cue.Value, file string, result *ParseResult) {
	var rc RecipeConfig
	if err := val.Decode(&rc); err != nil {
		result.Errors = append(result.Errors, ParseError{
			File: file, Path: name,
			Message: fmt.Sprintf("failed to decode recipe: %v", err),
		})
		return
	}

	// A map key doubles as the package name.
	if rc.Name == "" {
		rc.Name = name
	}

	r, err := p.build(&rc)
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			File: file, Path: rc.Name,
			Message: err.Error(),
		})
		return
	}

	result.Recipes = append(result.Recipes, r)
}

// build validates a wire-form recipe and converts it to a Recipe.
func (p *Parser) build(rc *RecipeConfig) (*Recipe, error) {
	if err := p.validator.Struct(rc); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	version, err := ParseVersion(rc.Version)
	if err != nil {
		return nil, err
	}

	deps := make([]Dependency, 0, len(rc.Deps))
	for _, dc := range rc.Deps {
		c, err := ParseConstraint(dc.Constraint)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", dc.Name, err)
		}
		deps = append(deps, Dependency{Name: dc.Name, Constraint: c})
	}

	output := rc.Output
	if output == "" {
		output = "out"
	}
	if filepath.IsAbs(output) || strings.Contains(output, "..") {
		return nil, fmt.Errorf("output %q must be a plain relative path", output)
	}

	return &Recipe{
		Name:         rc.Name,
		Version:      version,
		Repo:         p.repo,
		Dependencies: deps,
		Conflicts:    append([]string(nil), rc.Conflicts...),
		Steps:        append([]string(nil), rc.Steps...),
		Output:       output,
		Network:      rc.Network,
		Env:          rc.Env,
		LoadedAt:     time.Now(),
	}, nil
}

// collectFiles gathers recipe files (.cue and .star) under a directory.
func (p *Parser) collectFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".cue") || strings.HasSuffix(path, ".star") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}

// convertCUEErrors converts CUE errors to ParseError records.
func convertCUEErrors(err error) []ParseError {
	var parseErrors []ParseError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		parseErrors = append(parseErrors, ParseError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: errors.Details(e, nil),
		})
	}

	return parseErrors
}
