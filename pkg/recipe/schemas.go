package recipe

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("recipe", builtinRecipeSchema)
	sr.RegisterSchema("dependency", builtinDependencySchema)
	sr.RegisterSchema("repository", builtinRepositorySchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinRecipeSchema = `
// Recipe schema for storm package definitions
#Recipe: {
	// Name is the package name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Version is a dot-separated version string
	version: string & =~"^[a-zA-Z0-9_.+-]+$"

	// Deps lists dependency constraints
	deps?: [...#Dependency]

	// Conflicts lists package names this package cannot coexist with
	conflicts?: [...string & =~"^[a-zA-Z0-9_-]+$"]

	// Steps are the shell commands run inside the sandbox, in order
	steps: [...string] & [_, ...]

	// Output is the install directory relative to the sandbox scratch area
	output?: string & !~"^/" & !~"\\.\\."

	// Network requests network access for the build
	network?: bool

	// Env is extra build environment
	env?: {[string]: string}
}
`

const builtinDependencySchema = `
// Dependency schema for recipe dependency entries
#Dependency: {
	// Name is the depended-on package name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Constraint is a space-separated conjunction of predicates,
	// e.g. ">=1.2 <2.0". Empty or "*" means any version.
	constraint?: string
}
`

const builtinRepositorySchema = `
// Repository schema for repo registration entries
#Repository: {
	// Name is the repository name, unique within the store
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Kind selects the backend
	kind: "dir" | "ssh" | "dummy"

	// Location is the backend-specific source (path or host spec)
	location?: string

	// Default marks the repository as a member of the default list
	default?: bool
}
`

// ValidateRecipe validates a wire-form recipe against the recipe schema.
func (sr *SchemaRegistry) ValidateRecipe(ctx context.Context, rc RecipeConfig) error {
	return sr.ValidateAgainstSchema(ctx, "recipe", rc)
}

// ValidateDependency validates a dependency entry against the dependency schema.
func (sr *SchemaRegistry) ValidateDependency(ctx context.Context, dc DependencyConfig) error {
	return sr.ValidateAgainstSchema(ctx, "dependency", dc)
}
