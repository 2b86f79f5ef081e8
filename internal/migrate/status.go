package migrate

import (
	"os"
	"path/filepath"

	"github.com/nrvault/memtask/internal/storeerr"
)

// Status summarizes one past migration operation, read back from its
// manifest on disk.
type Status struct {
	OperationID  string
	ManifestPath string
	Manifest     *Manifest
}

// ListOperations returns every migration operation with a manifest
// still present under the backup directory, most recent first by
// directory listing order. Used for an operator-facing "what
// migrations have run" view and to find a manifest path for Rollback.
func (e *Engine) ListOperations() ([]Status, error) {
	root := e.backupDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, storeerr.Wrap(storeerr.IO, root, err)
	}

	var out []Status
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(root, entry.Name(), "manifest.json")
		manifest, err := readManifest(manifestPath)
		if err != nil {
			continue // not a migration dir, or manifest missing/corrupt
		}
		out = append(out, Status{
			OperationID:  manifest.OperationID,
			ManifestPath: manifestPath,
			Manifest:     manifest,
		})
	}
	return out, nil
}
