package migrate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/storeerr"
)

// Config is the subset of config.MigrationConfig the engine needs,
// restated here so this package has no import on internal/config.
type Config struct {
	LockTimeoutSec int
	MaxRetries     int
	BackupDir      string // absolute or relative to Root
	TempDir        string // absolute or relative to Root
}

// Engine applies and rolls back migration plans rooted at Root.
type Engine struct {
	Root string
	Cfg  Config
}

// New builds an Engine. Root is the directory BackupDir/TempDir are
// resolved against when given as relative paths.
func New(root string, cfg Config) *Engine {
	return &Engine{Root: root, Cfg: cfg}
}

func (e *Engine) backupDir() string {
	if filepath.IsAbs(e.Cfg.BackupDir) {
		return e.Cfg.BackupDir
	}
	return filepath.Join(e.Root, e.Cfg.BackupDir)
}

func (e *Engine) lockPath() string {
	return filepath.Join(e.Root, ".migration.lock")
}

// Apply executes plan per spec.md §4.6: lock, validate, backup,
// create directories, two-phase move, cleanup, verify. Any failure
// after the backup is written triggers an automatic rollback so the
// tree ends up exactly as it started.
func (e *Engine) Apply(plan Plan) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryMigrate, "apply")
	defer timer.Stop()
	log := logging.Get(logging.CategoryMigrate)

	if err := acquireLock(e.lockPath(), e.Cfg.lockTimeout()); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			releaseLock(e.lockPath())
			panic(r)
		}
	}()
	defer releaseLock(e.lockPath())

	if err := validate(plan); err != nil {
		return nil, err
	}

	manifest, manifestPath, err := writeBackup(plan, e.backupDir())
	if err != nil {
		return nil, err
	}

	if err := e.createDirs(plan.Creates); err != nil {
		rollbackErr := e.rollback(manifest)
		log.Error("apply: create dirs failed, rolled back: %v (rollback err: %v)", err, rollbackErr)
		return nil, err
	}

	if err := e.moveAll(plan.Moves); err != nil {
		rollbackErr := e.rollback(manifest)
		log.Error("apply: move failed, rolled back: %v (rollback err: %v)", err, rollbackErr)
		return nil, err
	}

	e.cleanupDirs(plan.Deletes) // best-effort; a non-empty leftover dir is not a failure

	if err := e.verify(plan); err != nil {
		rollbackErr := e.rollback(manifest)
		log.Error("apply: verify failed, rolled back: %v (rollback err: %v)", err, rollbackErr)
		return nil, err
	}

	log.Info("apply: %s moved %d entries", plan.OperationID, len(plan.Moves))
	return &Result{
		OperationID:  plan.OperationID,
		Applied:      len(plan.Moves),
		ManifestPath: manifestPath,
	}, nil
}

// lockTimeout mirrors config.MigrationConfig.LockTimeout without
// importing internal/config.
func (c Config) lockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSec) * time.Second
}

// createDirs makes every directory in dirs, deepest-last so parents
// exist before children (spec.md §4.6 step 4).
func (e *Engine) createDirs(dirs []string) error {
	sorted := append([]string(nil), dirs...)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.Count(sorted[i], string(os.PathSeparator)) < strings.Count(sorted[j], string(os.PathSeparator))
	})
	for _, d := range sorted {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return storeerr.Wrap(storeerr.IO, d, err)
		}
	}
	return nil
}

// moveAll groups moves by destination directory and runs each group
// concurrently (spec.md §4.6 step 5): within a group, every source
// first moves to a ".temp-<basename>" name in the destination
// directory; only once the whole group's temp moves succeed are the
// temps renamed to their final names. A failure partway through a
// group cleans up that group's temp files and aborts the whole plan
// (Apply rolls back from the manifest).
func (e *Engine) moveAll(moves []Move) error {
	groups := make(map[string][]Move)
	var order []string
	for _, mv := range moves {
		dir := filepath.Dir(mv.NewPath)
		if _, ok := groups[dir]; !ok {
			order = append(order, dir)
		}
		groups[dir] = append(groups[dir], mv)
	}

	g := new(errgroup.Group)
	for _, dir := range order {
		batch := groups[dir]
		g.Go(func() error {
			return e.moveGroup(batch)
		})
	}
	return g.Wait()
}

// moveGroup executes the two-phase move for one destination-directory
// group.
func (e *Engine) moveGroup(batch []Move) error {
	temps := make([]string, 0, len(batch))

	for _, mv := range batch {
		tempPath := filepath.Join(filepath.Dir(mv.NewPath), ".temp-"+filepath.Base(mv.NewPath))
		if err := renameWithRetry(mv.OldPath, tempPath, e.Cfg.MaxRetries); err != nil {
			cleanupTemps(temps)
			return storeerr.Wrap(storeerr.IO, mv.OldPath, err)
		}
		temps = append(temps, tempPath)
	}

	for i, mv := range batch {
		if err := renameWithRetry(temps[i], mv.NewPath, e.Cfg.MaxRetries); err != nil {
			cleanupTemps(temps[i:])
			return storeerr.Wrap(storeerr.IO, temps[i], err)
		}
	}
	return nil
}

func cleanupTemps(temps []string) {
	for _, t := range temps {
		_ = os.Remove(t)
	}
}

// cleanupDirs removes directories left empty by the move, deepest
// first, best-effort (spec.md §4.6 step 6).
func (e *Engine) cleanupDirs(dirs []string) {
	sorted := append([]string(nil), dirs...)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.Count(sorted[i], string(os.PathSeparator)) > strings.Count(sorted[j], string(os.PathSeparator))
	})
	for _, d := range sorted {
		_ = os.Remove(d) // fails silently if not empty; that's fine
	}
}

// verify confirms every move landed: new path present, old path gone
// (spec.md §4.6 step 8).
func (e *Engine) verify(plan Plan) error {
	for _, mv := range plan.Moves {
		if _, err := os.Lstat(mv.NewPath); err != nil {
			return storeerr.New(storeerr.IntegrityViolation, mv.NewPath, "expected file missing after move")
		}
		if _, err := os.Lstat(mv.OldPath); err == nil {
			return storeerr.New(storeerr.IntegrityViolation, mv.OldPath, "source still present after move")
		}
	}
	return nil
}
