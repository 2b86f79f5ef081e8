package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/storeerr"
)

// Index is the embedded relational mirror of the task filesystem tree
// (spec.md §4.3). It never originates data: every row is derived from
// a file, and a missing file means the row is stale.
type Index struct {
	db   *sql.DB
	mu   sync.Mutex
	root string

	cronRunner *cron.Cron
}

// Open creates or opens the SQLite database at dbPath and applies the
// schema (idempotent CREATE TABLE/INDEX IF NOT EXISTS), following the
// teacher's northstar store's WAL + busy-timeout DSN convention.
func Open(dbPath, taskRoot string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.IO, dbPath, err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, storeerr.Wrap(storeerr.IO, dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storeerr.Wrap(storeerr.IO, dbPath, err)
	}
	return &Index{db: db, root: taskRoot}, nil
}

// Close stops any periodic reconciliation and closes the database.
func (ix *Index) Close() error {
	if ix.cronRunner != nil {
		ix.cronRunner.Stop()
	}
	return ix.db.Close()
}

// StartPeriodicSync registers a cron-scheduled full sync as a safety
// net against missed or coalesced filesystem events (spec.md §4.3:
// "An orphan row ... is corrected at the next full sync, which MUST be
// triggerable on demand" — this is the scheduled trigger; on-demand is
// FullSync called directly). Empty spec disables it.
func (ix *Index) StartPeriodicSync(spec string) error {
	if spec == "" {
		return nil
	}
	ix.cronRunner = cron.New()
	_, err := ix.cronRunner.AddFunc(spec, func() {
		if err := ix.FullSync(); err != nil {
			logging.Get(logging.CategoryIndex).Error("periodic full sync failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("index: schedule periodic sync: %w", err)
	}
	ix.cronRunner.Start()
	return nil
}
