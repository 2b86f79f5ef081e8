package migrate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nrvault/memtask/internal/storeerr"
)

// writeBackup copies every move's current file into backupDir and
// writes the manifest describing where each copy landed (spec.md §4.6
// step 3). The manifest is what Rollback replays if a later step
// fails. The directory is named backup-<ts>-<op_id> so an operator
// browsing the backup root can tell operations apart at a glance.
func writeBackup(plan Plan, backupDir string) (*Manifest, string, error) {
	dirName := fmt.Sprintf("backup-%s-%s", plan.CreatedAt.UTC().Format("20060102150405"), plan.OperationID)
	opBackupDir := filepath.Join(backupDir, dirName)
	if err := os.MkdirAll(opBackupDir, 0o755); err != nil {
		return nil, "", storeerr.Wrap(storeerr.IO, opBackupDir, err)
	}

	manifest := &Manifest{
		OperationID: plan.OperationID,
		CreatedAt:   plan.CreatedAt,
		BackupDir:   opBackupDir,
	}

	used := make(map[string]int)
	for _, mv := range plan.Moves {
		base := filepath.Base(mv.OldPath)
		backupName := base
		if n := used[base]; n > 0 {
			backupName = fmt.Sprintf("%s.%d", base, n)
		}
		used[base]++
		backupPath := filepath.Join(opBackupDir, backupName)
		if err := copyFile(mv.OldPath, backupPath); err != nil {
			return nil, "", storeerr.Wrap(storeerr.IO, mv.OldPath, err)
		}
		manifest.Entries = append(manifest.Entries, ManifestEntry{
			Original: mv.OldPath,
			NewPath:  mv.NewPath,
			Backup:   backupPath,
			TaskID:   mv.TaskID,
		})
	}

	manifestPath := filepath.Join(opBackupDir, "manifest.json")
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", storeerr.Wrap(storeerr.IO, manifestPath, err)
	}
	if err := os.WriteFile(manifestPath, raw, 0o644); err != nil {
		return nil, "", storeerr.Wrap(storeerr.IO, manifestPath, err)
	}

	return manifest, manifestPath, nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// readManifest loads a manifest previously written by writeBackup, for
// Rollback.
func readManifest(manifestPath string) (*Manifest, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.IO, manifestPath, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, storeerr.Wrap(storeerr.ParseBody, manifestPath, err)
	}
	return &m, nil
}

// ReadManifest is the exported form of readManifest, for callers that
// need the entry list itself (e.g. the §4.7 semantic-migration glue,
// which restores per-task bookkeeping after a rollback rather than
// just the files Rollback already restores).
func ReadManifest(manifestPath string) (*Manifest, error) {
	return readManifest(manifestPath)
}
