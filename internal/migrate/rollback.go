package migrate

import (
	"os"

	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/storeerr"
)

// rollback restores every entry in manifest to its original location,
// best-effort across all entries rather than stopping at the first
// failure, so a single stuck file doesn't leave the rest of the tree
// mismigrated.
func (e *Engine) rollback(manifest *Manifest) error {
	log := logging.Get(logging.CategoryMigrate)
	var firstErr error
	for _, entry := range manifest.Entries {
		if entry.NewPath != "" {
			if _, err := os.Lstat(entry.NewPath); err == nil {
				if err := os.Remove(entry.NewPath); err != nil {
					log.Error("rollback: could not remove destination %s: %v", entry.NewPath, err)
					if firstErr == nil {
						firstErr = storeerr.Wrap(storeerr.IO, entry.NewPath, err)
					}
					continue
				}
			}
		}
		if _, err := os.Lstat(entry.Original); err == nil {
			continue // already back (or move never happened for this entry)
		}
		if err := copyFile(entry.Backup, entry.Original); err != nil {
			log.Error("rollback: could not restore %s from %s: %v", entry.Original, entry.Backup, err)
			if firstErr == nil {
				firstErr = storeerr.Wrap(storeerr.IO, entry.Original, err)
			}
		}
	}
	return firstErr
}

// Rollback restores a previously applied migration from its manifest
// file on disk, for operator-triggered undo after the fact.
func (e *Engine) Rollback(manifestPath string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryMigrate, "rollback")
	defer timer.Stop()

	if err := acquireLock(e.lockPath(), e.Cfg.lockTimeout()); err != nil {
		return nil, err
	}
	defer releaseLock(e.lockPath())

	manifest, err := readManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if err := e.rollback(manifest); err != nil {
		return nil, err
	}

	return &Result{
		OperationID:  manifest.OperationID,
		Applied:      len(manifest.Entries),
		RolledBack:   true,
		ManifestPath: manifestPath,
	}, nil
}
