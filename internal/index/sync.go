package index

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/storeerr"
)

type parsedFile struct {
	path string
	row  *Row
	err  error
}

// FullSync walks the task root, parses every file concurrently
// (bounded by errgroup), then upserts all rows in a single transaction
// and deletes rows whose id was not seen (spec.md §4.3 Startup step 2;
// also the on-demand re-sync trigger referenced by §4.3's failure
// semantics and by internal/index's cron safety net).
func (ix *Index) FullSync() error {
	timer := logging.StartTimer(logging.CategoryIndex, "full-sync")
	defer timer.Stop()

	var paths []string
	err := filepath.Walk(ix.root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if !info.IsDir() && strings.HasSuffix(path, ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return storeerr.Wrap(storeerr.IO, ix.root, err)
	}

	results := make([]parsedFile, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(8)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			raw, readErr := os.ReadFile(p)
			if readErr != nil {
				results[i] = parsedFile{path: p, err: readErr}
				return nil
			}
			row, parseErr := parseRow(raw)
			results[i] = parsedFile{path: p, row: row, err: parseErr}
			return nil
		})
	}
	_ = g.Wait() // per-file errors are collected in results, not fatal to the sync

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return storeerr.Wrap(storeerr.IO, ix.root, err)
	}
	defer tx.Rollback()

	// An id found at exactly one path in this walk is claimed by that path,
	// so a file moved by a migration replaces the file_path on record; only
	// an id found at several paths is checked against the row on record.
	pathCount := make(map[string]int)
	for _, r := range results {
		if r.err == nil {
			pathCount[r.row.ID]++
		}
	}
	seen := make(map[string]bool)
	claimed := make(map[string]string)
	for _, r := range results {
		if r.err != nil {
			logging.Get(logging.CategoryIndex).Warn("full sync: skipping %s: %v", r.path, r.err)
			continue
		}
		rel, relErr := filepath.Rel(ix.root, r.path)
		if relErr != nil {
			rel = r.path
		}
		if pathCount[r.row.ID] == 1 {
			claimed[r.row.ID] = rel
		}
		if err := checkIDConflict(tx, claimed, r.row.ID, rel); err != nil {
			logging.Get(logging.CategoryIndex).Warn("full sync: %v", err)
			seen[r.row.ID] = true // the first-seen row for this id stays indexed
			continue
		}
		r.row.FilePath = rel
		if err := upsertTx(tx, r.row); err != nil {
			return err
		}
		seen[r.row.ID] = true
	}

	if err := deleteUnseenTx(tx, seen); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeerr.Wrap(storeerr.IO, ix.root, err)
	}
	logging.Get(logging.CategoryIndex).Info("full sync: %d task files indexed", len(seen))
	return nil
}

func deleteUnseenTx(tx *sql.Tx, seen map[string]bool) error {
	rows, err := tx.Query(`SELECT id FROM tasks`)
	if err != nil {
		return storeerr.Wrap(storeerr.IO, "", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return storeerr.Wrap(storeerr.IO, "", err)
		}
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return storeerr.Wrap(storeerr.IO, id, err)
		}
	}
	return nil
}

// EventKind tags one collapsed filesystem event from internal/watcher.
type EventKind string

const (
	EventAdd    EventKind = "add"
	EventChange EventKind = "change"
	EventDelete EventKind = "delete"
)

// Event is one collapsed, path-keyed filesystem change (spec.md §4.4).
type Event struct {
	Path string
	Kind EventKind
}

// ApplyBatch applies one debounce window's worth of collapsed events
// in a single transaction, in the order given (callers are expected to
// have already ordered parents before children; spec.md §4.4).
func (ix *Index) ApplyBatch(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryIndex, "apply-batch")
	defer timer.Stop()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return storeerr.Wrap(storeerr.IO, "", err)
	}
	defer tx.Rollback()

	claimed := make(map[string]string)
	for _, ev := range events {
		rel, relErr := filepath.Rel(ix.root, ev.Path)
		if relErr != nil {
			rel = ev.Path
		}
		switch ev.Kind {
		case EventDelete:
			id, ok := idFromPath(ev.Path)
			if !ok {
				logging.Get(logging.CategoryIndex).Warn("apply-batch: cannot infer id from %s on delete", ev.Path)
				continue
			}
			if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
				return storeerr.Wrap(storeerr.IO, ev.Path, err)
			}
		default:
			raw, readErr := os.ReadFile(ev.Path)
			if readErr != nil {
				logging.Get(logging.CategoryIndex).Warn("apply-batch: cannot read %s: %v", ev.Path, readErr)
				continue
			}
			row, parseErr := parseRow(raw)
			if parseErr != nil {
				logging.Get(logging.CategoryIndex).Warn("apply-batch: cannot parse %s: %v", ev.Path, parseErr)
				continue
			}
			if err := checkIDConflict(tx, claimed, row.ID, rel); err != nil {
				logging.Get(logging.CategoryIndex).Warn("apply-batch: %v", err)
				continue
			}
			row.FilePath = rel
			if err := upsertTx(tx, row); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storeerr.Wrap(storeerr.IO, "", err)
	}
	return nil
}

// idFromPath infers a task id from its filename, used when a delete
// event arrives and the file (hence its header) is already gone.
// internal/task names files "task-<id>.md" in both flat and semantic
// layouts (spec.md §6; cmd/memtaskd/semantic.go uses the same
// convention), so strip that prefix when present; fall back to the
// bare stem for any file that predates it.
func idFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".md") {
		return "", false
	}
	stem := strings.TrimSuffix(base, ".md")
	stem = strings.TrimPrefix(stem, "task-")
	return stem, true
}
