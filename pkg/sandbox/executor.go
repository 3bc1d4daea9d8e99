package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/telemetry"
)

// DefaultBuildTimeout bounds a single node's build when the caller
// does not say otherwise.
const DefaultBuildTimeout = 30 * time.Minute

// Executor runs one build plan node at a time inside an isolated
// environment. It is safe for concurrent use: every Execute call owns
// its environment exclusively.
type Executor struct {
	provider Provider
	timeout  time.Duration
	logger   *telemetry.Logger
}

// NewExecutor creates an executor over an environment provider.
func NewExecutor(provider Provider, timeout time.Duration, logger *telemetry.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	return &Executor{
		provider: provider,
		timeout:  timeout,
		logger:   logger.NewComponentLogger("sandbox"),
	}
}

// Execute builds one recipe: allocates an environment, runs the build
// steps sequentially, captures the output tree into outDir, and tears
// the environment down unconditionally before returning. deps are the
// already-built dependency trees the build may read.
func (e *Executor) Execute(ctx context.Context, rec *recipe.Recipe, deps []DepMount, outDir string) (*Artifact, error) {
	log := e.logger.WithPackage(rec.ID())
	start := time.Now()

	spec := EnvSpec{
		Name:    rec.ID(),
		Deps:    deps,
		Output:  rec.Output,
		Network: rec.Network,
	}

	env, err := e.provider.Create(ctx, spec)
	if err != nil {
		return nil, NewSetupError("failed to create build environment", err).WithPackage(rec.ID())
	}
	// Teardown must happen even when a step fails, times out, or the
	// output walk errors.
	defer func() {
		if terr := env.Teardown(); terr != nil {
			log.WithError(terr).Warn("environment teardown failed")
		}
	}()

	buildCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var output bytes.Buffer
	for i, step := range rec.Steps {
		log.WithField("step", i).Debugf("running build step: %s", step)

		exitCode, err := env.Run(buildCtx, step, rec.Env, &output)
		if err != nil {
			if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
				return nil, NewTimeoutError("build exceeded its deadline").WithPackage(rec.ID())
			}
			return nil, NewSetupError("failed to run build step", err).WithPackage(rec.ID())
		}
		if exitCode != 0 {
			if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
				return nil, NewTimeoutError("build exceeded its deadline").WithPackage(rec.ID())
			}
			return nil, NewStepFailedError(i, exitCode, output.String()).WithPackage(rec.ID())
		}
	}

	manifest, err := BuildManifest(env.OutputPath())
	if err != nil {
		return nil, NewSetupError("failed to capture output manifest", err).WithPackage(rec.ID())
	}

	if err := os.MkdirAll(filepath.Dir(outDir), 0o755); err != nil {
		return nil, NewSetupError("failed to prepare artifact directory", err).WithPackage(rec.ID())
	}
	if err := CopyTree(env.OutputPath(), outDir); err != nil {
		return nil, NewSetupError("failed to copy out artifact", err).WithPackage(rec.ID())
	}

	duration := time.Since(start)
	log.WithField("files", len(manifest)).
		WithField("duration", duration.String()).
		Info("build succeeded")

	return &Artifact{
		Node:     rec.ID(),
		Path:     outDir,
		Manifest: manifest,
		Log:      output.String(),
		Duration: duration,
	}, nil
}
