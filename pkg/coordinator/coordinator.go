// Package coordinator drives resolved build plans to a committed
// package database transaction. It executes plan nodes level-parallel
// with a bounded worker pool, buffers artifacts in a staging area, and
// commits all effects atomically: the first failure, or cancellation
// before commit, discards everything and leaves the database and the
// package store untouched.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stormpkg/storm/pkg/pkgdb"
	"github.com/stormpkg/storm/pkg/recipe"
	"github.com/stormpkg/storm/pkg/resolver"
	"github.com/stormpkg/storm/pkg/sandbox"
	"github.com/stormpkg/storm/pkg/telemetry"
)

// Config holds coordinator configuration.
type Config struct {
	// StoreDir is the package store root. Artifacts are staged under
	// StoreDir/staging/<txn> and committed into StoreDir/pkgs.
	StoreDir string

	// MaxParallel caps concurrent builds within one plan level.
	MaxParallel int
}

// CommitReport summarizes a committed transaction.
type CommitReport struct {
	// TxnID is the committed transaction's identity.
	TxnID string `json:"txn_id"`

	// Installed lists the node IDs built and installed, in plan order.
	Installed []string `json:"installed,omitempty"`

	// Removed lists the node IDs removed, in plan order.
	Removed []string `json:"removed,omitempty"`

	// Duration is the wall time from Apply to commit.
	Duration time.Duration `json:"duration"`
}

// Coordinator applies resolved build plans transactionally.
type Coordinator struct {
	recipes  *recipe.Store
	db       *pkgdb.DB
	executor *sandbox.Executor
	tel      *telemetry.Telemetry
	cfg      Config
	logger   *telemetry.Logger
}

// New creates a coordinator over a recipe store, package database, and
// build executor.
func New(recipes *recipe.Store, db *pkgdb.DB, executor *sandbox.Executor, tel *telemetry.Telemetry, cfg Config) *Coordinator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &Coordinator{
		recipes:  recipes,
		db:       db,
		executor: executor,
		tel:      tel,
		cfg:      cfg,
		logger:   tel.Logger.NewComponentLogger("coordinator"),
	}
}

// PkgDir returns the committed artifact directory for a node ID.
func (c *Coordinator) PkgDir(nodeID string) string {
	return filepath.Join(c.cfg.StoreDir, "pkgs", nodeID)
}

// Apply executes a build plan and commits its full effect, or
// discards everything on the first failure. Cancellation is honored
// between levels and before commit; once the commit starts it runs to
// completion.
func (c *Coordinator) Apply(ctx context.Context, plan *resolver.Plan) (*CommitReport, error) {
	txnID := uuid.New().String()
	log := c.logger.WithTxnID(txnID)
	start := time.Now()

	if plan.IsEmpty() {
		log.Info("plan is empty, nothing to do")
		return &CommitReport{TxnID: txnID}, nil
	}

	_ = c.tel.Events.PublishTxnStarted(txnID, len(plan.Nodes))
	log.WithField("nodes", len(plan.Nodes)).Info("applying build plan")

	// Paths of already-installed artifacts, for dependency mounts.
	snapshot, err := c.db.Snapshot(ctx)
	if err != nil {
		return nil, c.abort(txnID, "", NewStagingFailedError("failed to read installed snapshot", err).WithTxn(txnID), start)
	}
	installedPath := make(map[string]string, len(snapshot))
	oldPath := make(map[string]string, len(snapshot))
	for _, pkg := range snapshot {
		installedPath[pkg.Name] = pkg.Path
		oldPath[pkg.Name] = pkg.Path
	}

	stagingDir := filepath.Join(c.cfg.StoreDir, "staging", txnID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, c.abort(txnID, "", NewStagingFailedError("failed to create staging area", err).WithTxn(txnID), start)
	}

	// Artifacts buffered per package name until commit.
	staged := make(map[string]*sandbox.Artifact)
	var stagedMu sync.Mutex

	for _, level := range plan.Levels() {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(stagingDir)
			return nil, c.abort(txnID, "", NewCancelledError(err).WithTxn(txnID), start)
		}
		if err := c.runLevel(ctx, txnID, level, stagingDir, staged, &stagedMu, installedPath); err != nil {
			_ = os.RemoveAll(stagingDir)
			return nil, c.abort(txnID, "", err, start)
		}
	}

	// Cancellation is accepted only up to this point.
	if err := ctx.Err(); err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, c.abort(txnID, "", NewCancelledError(err).WithTxn(txnID), start)
	}

	report, err := c.commit(context.WithoutCancel(ctx), txnID, plan, staged, stagingDir, oldPath, start)
	if err != nil {
		return nil, c.abort(txnID, "", err, start)
	}

	_ = c.db.AppendJournal(context.WithoutCancel(ctx), &pkgdb.JournalEntry{
		TxnID:   txnID,
		Type:    pkgdb.JournalCommitted,
		Message: fmt.Sprintf("installed %d, removed %d", len(report.Installed), len(report.Removed)),
	})
	_ = c.tel.Events.PublishTxnCommitted(txnID, report.Duration)
	c.tel.Metrics.RecordTransaction("committed", report.Duration)
	for i := range plan.Nodes {
		node := &plan.Nodes[i]
		switch node.Action {
		case resolver.ActionRemove:
			_ = c.tel.Events.PublishPackageRemoved(txnID, node.Name, node.Version.String())
		case resolver.ActionInstall, resolver.ActionUpgrade:
			_ = c.tel.Events.PublishPackageInstalled(txnID, node.Name, node.Version.String())
		}
	}
	if installed, err := c.db.Snapshot(context.WithoutCancel(ctx)); err == nil {
		c.tel.Metrics.SetInstalledPackages(float64(len(installed)))
	}
	log.WithField("duration", report.Duration.String()).Info("transaction committed")

	return report, nil
}

// runLevel builds every install/upgrade node of one level with a
// bounded worker pool. Removal nodes carry no build work.
func (c *Coordinator) runLevel(
	ctx context.Context,
	txnID string,
	level []*resolver.Node,
	stagingDir string,
	staged map[string]*sandbox.Artifact,
	stagedMu *sync.Mutex,
	installedPath map[string]string,
) error {
	buildNodes := make([]*resolver.Node, 0, len(level))
	for _, node := range level {
		if node.Action != resolver.ActionRemove {
			buildNodes = append(buildNodes, node)
		}
	}
	if len(buildNodes) == 0 {
		return nil
	}

	workerCount := c.cfg.MaxParallel
	if len(buildNodes) < workerCount {
		workerCount = len(buildNodes)
	}

	queue := make(chan *resolver.Node, len(buildNodes))
	for _, node := range buildNodes {
		queue <- node
	}
	close(queue)
	c.tel.Metrics.SetQueuedNodes(float64(len(buildNodes)))

	// First failure cancels the level; in-flight builds stop with it.
	levelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, len(buildNodes))

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for node := range queue {
				if levelCtx.Err() != nil {
					return
				}
				if err := c.buildNode(levelCtx, txnID, node, stagingDir, staged, stagedMu, installedPath); err != nil {
					errChan <- err
					cancel()
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)
	c.tel.Metrics.SetQueuedNodes(0)

	for err := range errChan {
		return err
	}
	return nil
}

// buildNode runs one node's build into the staging area.
func (c *Coordinator) buildNode(
	ctx context.Context,
	txnID string,
	node *resolver.Node,
	stagingDir string,
	staged map[string]*sandbox.Artifact,
	stagedMu *sync.Mutex,
	installedPath map[string]string,
) error {
	log := c.logger.WithTxnID(txnID).WithNode(node.ID())

	rec, ok := c.recipes.Lookup(node.Name, node.Version)
	if !ok {
		return NewBuildFailedError(node.ID(), fmt.Errorf("no recipe for %s", node.ID())).WithTxn(txnID)
	}

	deps := make([]sandbox.DepMount, 0, len(node.Deps))
	stagedMu.Lock()
	for _, dep := range node.Deps {
		if artifact, ok := staged[dep]; ok {
			deps = append(deps, sandbox.DepMount{Package: dep, Source: artifact.Path})
			continue
		}
		if path, ok := installedPath[dep]; ok {
			deps = append(deps, sandbox.DepMount{Package: dep, Source: path})
			continue
		}
		stagedMu.Unlock()
		return NewBuildFailedError(node.ID(), fmt.Errorf("dependency %s has no artifact", dep)).WithTxn(txnID)
	}
	stagedMu.Unlock()

	_ = c.tel.Events.PublishBuildStarted(txnID, node.ID(), node.Name)
	c.tel.Metrics.SandboxStarted()
	artifact, err := c.executor.Execute(ctx, rec, deps, filepath.Join(stagingDir, node.ID()))
	c.tel.Metrics.SandboxFinished()
	if err != nil {
		c.tel.Metrics.RecordBuild("failure", 0)
		_ = c.tel.Events.PublishBuildFailed(txnID, node.ID(), node.Name, err.Error())
		return NewBuildFailedError(node.ID(), err).WithTxn(txnID)
	}

	c.tel.Metrics.RecordBuild("success", artifact.Duration)
	_ = c.tel.Events.PublishBuildCompleted(txnID, node.ID(), node.Name, artifact.Duration)
	_ = c.db.AppendJournal(ctx, &pkgdb.JournalEntry{
		TxnID:   txnID,
		Type:    pkgdb.JournalBuilt,
		Package: node.Name,
		Message: fmt.Sprintf("built %s", node.ID()),
	})
	log.WithField("duration", artifact.Duration.String()).Debug("node built")

	stagedMu.Lock()
	staged[node.Name] = artifact
	stagedMu.Unlock()
	return nil
}

// commit moves staged artifacts into the package store and applies the
// database change set in one transaction.
func (c *Coordinator) commit(
	ctx context.Context,
	txnID string,
	plan *resolver.Plan,
	staged map[string]*sandbox.Artifact,
	stagingDir string,
	oldPath map[string]string,
	start time.Time,
) (*CommitReport, error) {
	pkgsDir := filepath.Join(c.cfg.StoreDir, "pkgs")
	if err := os.MkdirAll(pkgsDir, 0o755); err != nil {
		return nil, NewCommitFailedError(err).WithTxn(txnID)
	}

	report := &CommitReport{TxnID: txnID}
	changes := pkgdb.ChangeSet{}
	var moved []string

	// Undo renames if the database commit does not go through.
	rollback := func() {
		for _, dir := range moved {
			_ = os.RemoveAll(dir)
		}
		_ = os.RemoveAll(stagingDir)
	}

	for i := range plan.Nodes {
		node := &plan.Nodes[i]
		switch node.Action {
		case resolver.ActionRemove:
			changes.Remove = append(changes.Remove, node.Name)
			report.Removed = append(report.Removed, node.ID())

		case resolver.ActionInstall, resolver.ActionUpgrade:
			artifact, ok := staged[node.Name]
			if !ok {
				rollback()
				return nil, NewCommitFailedError(fmt.Errorf("no staged artifact for %s", node.ID())).WithTxn(txnID)
			}

			dst := filepath.Join(pkgsDir, node.ID())
			_ = os.RemoveAll(dst)
			if err := os.Rename(artifact.Path, dst); err != nil {
				rollback()
				return nil, NewCommitFailedError(fmt.Errorf("failed to move artifact into store: %w", err)).WithTxn(txnID)
			}
			moved = append(moved, dst)

			changes.Install = append(changes.Install, pkgdb.InstalledPackage{
				Name:     node.Name,
				Version:  node.Version,
				Path:     dst,
				Manifest: artifact.Manifest,
				Deps:     node.Deps,
			})
			report.Installed = append(report.Installed, node.ID())
		}
	}

	if err := c.db.Commit(ctx, txnID, changes); err != nil {
		rollback()
		return nil, NewCommitFailedError(err).WithTxn(txnID)
	}

	// Committed. Drop the staging area and superseded artifact trees.
	_ = os.RemoveAll(stagingDir)
	for i := range plan.Nodes {
		node := &plan.Nodes[i]
		if node.Action == resolver.ActionRemove || node.Action == resolver.ActionUpgrade {
			if old, ok := oldPath[node.Name]; ok && old != "" && old != filepath.Join(pkgsDir, node.ID()) {
				if err := os.RemoveAll(old); err != nil {
					c.logger.WithTxnID(txnID).WithError(err).Warn("failed to remove superseded artifact")
				}
			}
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

// abort records the failure and returns it.
func (c *Coordinator) abort(txnID, node string, err error, start time.Time) error {
	_ = c.db.AppendJournal(context.Background(), &pkgdb.JournalEntry{
		TxnID:   txnID,
		Type:    pkgdb.JournalAborted,
		Package: node,
		Message: err.Error(),
	})
	_ = c.tel.Events.PublishTxnAborted(txnID, err.Error())
	c.tel.Metrics.RecordTransaction("aborted", time.Since(start))
	c.logger.WithTxnID(txnID).WithError(err).Error("transaction aborted")
	return err
}
