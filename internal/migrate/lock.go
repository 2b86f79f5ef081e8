package migrate

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nrvault/memtask/internal/storeerr"
)

type lockPayload struct {
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

// acquireLock creates the migration lock file with exclusive-create
// semantics (spec.md §4.6 step 1). A lock file older than staleAfter
// is treated as abandoned and reclaimed; otherwise the caller sees
// LockHeld.
func acquireLock(lockPath string, staleAfter time.Duration) error {
	payload, err := json.Marshal(lockPayload{PID: os.Getpid(), Timestamp: time.Now().UTC()})
	if err != nil {
		return storeerr.Wrap(storeerr.IO, lockPath, err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		defer f.Close()
		_, writeErr := f.Write(payload)
		if writeErr != nil {
			return storeerr.Wrap(storeerr.IO, lockPath, writeErr)
		}
		return nil
	}
	if !os.IsExist(err) {
		return storeerr.Wrap(storeerr.IO, lockPath, err)
	}

	existing, readErr := os.ReadFile(lockPath)
	if readErr != nil {
		return storeerr.Wrap(storeerr.IO, lockPath, readErr)
	}
	var prior lockPayload
	if unmarshalErr := json.Unmarshal(existing, &prior); unmarshalErr != nil {
		return storeerr.New(storeerr.LockHeld, lockPath, "existing lock file is unreadable")
	}
	if time.Since(prior.Timestamp) < staleAfter {
		return storeerr.New(storeerr.LockHeld, lockPath, "migration already in progress")
	}

	// Stale: reclaim by overwriting.
	if err := os.WriteFile(lockPath, payload, 0o644); err != nil {
		return storeerr.Wrap(storeerr.IO, lockPath, err)
	}
	return nil
}

// releaseLock removes the lock file. Called via defer so it runs even
// on panic (spec.md §4.6 step 10).
func releaseLock(lockPath string) {
	_ = os.Remove(lockPath)
}
