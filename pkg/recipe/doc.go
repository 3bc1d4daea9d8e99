// Package recipe provides CUE recipe parsing, Starlark recipe generation,
// and the version constraint model for storm packages.
//
// # Overview
//
// The recipe package implements the recipe loading phase of storm,
// responsible for parsing CUE recipe files, validating them against
// schemas, evaluating Starlark generator scripts, and indexing the
// resulting recipes by name and version.
//
// # Components
//
// Parser: Main loader for CUE recipe files and Starlark generators.
// Produces Recipe records tagged with their repository of origin.
//
// SchemaRegistry: Manages CUE schemas for validation. Provides built-in
// schemas for recipes, dependencies, and repository entries.
//
// StarlarkEvaluator: Safe Starlark script execution with timeout
// enforcement and sandboxing. Generator scripts leave a "recipes"
// global holding a list of recipe dicts.
//
// Store: An in-memory index of loaded recipes, sorted newest-first per
// package name.
//
// Version, Constraint: Dot-separated version values and conjunctive
// version predicates ("==", ">=", "<", "!=") used by dependency
// resolution.
//
// # Recipe Structure
//
// A typical recipe file:
//
//	recipes: {
//	    zlib: {
//	        version: "1.3.1"
//	        steps: ["./configure", "make", "make install DESTDIR=$STORM_OUT"]
//	    }
//	    curl: {
//	        version: "8.9"
//	        deps: [{name: "zlib", constraint: ">=1.3"}]
//	        network: true
//	        steps: ["./configure --with-zlib", "make", "make install DESTDIR=$STORM_OUT"]
//	    }
//	}
//
// # Starlark Generators
//
// Files ending in .star are evaluated as recipe generators:
//
//	recipes = [
//	    recipe(name = "gcc-libs", version = v, steps = ["make"])
//	    for v in ["13.2", "14.1"]
//	]
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement (default 30 seconds)
//   - Print statements suppressed
//   - Only safe built-in functions provided
//
// # Thread Safety
//
// SchemaRegistry is safe for concurrent use. Parser and Store are not;
// load recipes up front, then treat the Store as read-only.
package recipe
