package sandbox

import (
	"context"
	"io"
	"time"
)

// DepMount is one dependency output tree made visible to a build,
// mounted read-only.
type DepMount struct {
	// Package is the dependency package name. Inside the sandbox the
	// tree appears under the dependency root at this name.
	Package string

	// Source is the host path of the dependency's installed tree.
	Source string
}

// EnvSpec describes the isolated environment one build node needs.
type EnvSpec struct {
	// Name identifies the environment; used for naming its directories.
	Name string

	// Deps are the dependency trees the build may read.
	Deps []DepMount

	// Output is the directory, relative to the work area, the build
	// installs into. Created before the first step runs.
	Output string

	// Network grants network access. Default is fully isolated.
	Network bool
}

// Environment is one live isolated build environment. Every
// environment is exclusively owned by the executor invocation that
// created it and must be torn down exactly once.
type Environment interface {
	// OutputPath returns the host-visible path of the declared output
	// tree, valid until Teardown.
	OutputPath() string

	// Run executes one build step inside the environment, streaming
	// combined stdout and stderr to out. extra is additional
	// environment for the step. Returns the step's exit code; a
	// non-nil error means the step could not be run at all.
	Run(ctx context.Context, step string, extra map[string]string, out io.Writer) (int, error)

	// Teardown releases every mount, namespace, and directory the
	// environment holds. Idempotent.
	Teardown() error
}

// Provider allocates isolated environments. The host syscall layer
// hides behind this so executor logic is testable without namespace
// privileges.
type Provider interface {
	Create(ctx context.Context, spec EnvSpec) (Environment, error)
}

// Artifact is the captured result of successfully building one node.
// It is owned by the caller until committed or discarded.
type Artifact struct {
	// Node is the plan node identity ("name-version").
	Node string `json:"node"`

	// Path is the host path of the copied-out output tree.
	Path string `json:"path"`

	// Manifest lists every file of the output tree.
	Manifest []ManifestEntry `json:"manifest"`

	// Log is the captured combined build output.
	Log string `json:"log"`

	// Duration is how long the build ran.
	Duration time.Duration `json:"duration"`
}
