package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stormpkg/storm/pkg/pkgdb"
	"github.com/stormpkg/storm/pkg/resolver"
	"github.com/stormpkg/storm/pkg/sandbox"
)

// Build runs a plan's builds and saves the artifacts into the package
// store without installing them. Saved builds show up in Built and are
// reclaimed by Clean once nothing references them. Removal nodes are
// ignored.
func (c *Coordinator) Build(ctx context.Context, plan *resolver.Plan) ([]string, error) {
	txnID := uuid.New().String()
	log := c.logger.WithTxnID(txnID)
	start := time.Now()

	if plan.IsEmpty() {
		return nil, nil
	}

	snapshot, err := c.db.Snapshot(ctx)
	if err != nil {
		return nil, c.abort(txnID, "", NewStagingFailedError("failed to read installed snapshot", err).WithTxn(txnID), start)
	}
	installedPath := make(map[string]string, len(snapshot))
	for _, pkg := range snapshot {
		installedPath[pkg.Name] = pkg.Path
	}

	stagingDir := filepath.Join(c.cfg.StoreDir, "staging", txnID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, c.abort(txnID, "", NewStagingFailedError("failed to create staging area", err).WithTxn(txnID), start)
	}

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

	pkgsDir := filepath.Join(c.cfg.StoreDir, "pkgs")
	if err := os.MkdirAll(pkgsDir, 0o755); err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, c.abort(txnID, "", NewCommitFailedError(err).WithTxn(txnID), start)
	}

	var saved []string
	for i := range plan.Nodes {
		node := &plan.Nodes[i]
		if node.Action == resolver.ActionRemove {
			continue
		}
		artifact, ok := staged[node.Name]
		if !ok {
			continue
		}
		dst := filepath.Join(pkgsDir, node.ID())
		_ = os.RemoveAll(dst)
		if err := os.Rename(artifact.Path, dst); err != nil {
			_ = os.RemoveAll(stagingDir)
			return nil, c.abort(txnID, "", NewCommitFailedError(fmt.Errorf("failed to save build: %w", err)).WithTxn(txnID), start)
		}
		saved = append(saved, node.ID())
	}
	_ = os.RemoveAll(stagingDir)

	_ = c.db.AppendJournal(context.WithoutCancel(ctx), &pkgdb.JournalEntry{
		TxnID:   txnID,
		Type:    pkgdb.JournalBuilt,
		Message: fmt.Sprintf("saved %d builds", len(saved)),
	})
	log.WithField("saved", len(saved)).Info("builds saved")
	return saved, nil
}

// Built lists the node IDs with a saved build in the package store,
// sorted. Installed packages count as built.
func (c *Coordinator) Built() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.cfg.StoreDir, "pkgs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Clean removes saved builds that no installed package references and
// returns the node IDs reclaimed.
func (c *Coordinator) Clean(ctx context.Context) ([]string, error) {
	snapshot, err := c.db.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	inUse := make(map[string]bool, len(snapshot))
	for _, pkg := range snapshot {
		inUse[filepath.Base(pkg.Path)] = true
	}

	ids, err := c.Built()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, id := range ids {
		if inUse[id] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.cfg.StoreDir, "pkgs", id)); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		c.logger.WithField("removed", len(removed)).Info("reclaimed unused builds")
	}
	return removed, nil
}
