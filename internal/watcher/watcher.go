// Package watcher subscribes to the task root (and optionally the
// memories root) for filesystem changes and feeds debounced, collapsed
// batches to the indexer (spec.md §4.4). It follows the same
// debounce-map-plus-ticker shape as the teacher's mangle watcher,
// generalized from a single directory and a fixed suffix to an
// arbitrary set of roots and a pluggable apply function.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nrvault/memtask/internal/logging"
)

// EventKind mirrors index.EventKind so that the debounce pipeline in
// this file does not reference internal/index; the package still
// imports internal/index through IndexSink in sink.go.
type EventKind string

const (
	EventAdd    EventKind = "add"
	EventChange EventKind = "change"
	EventDelete EventKind = "delete"
)

// Event is one collapsed, path-keyed filesystem change.
type Event struct {
	Path string
	Kind EventKind
}

// Config controls debounce/stability timing (spec.md §4.4).
type Config struct {
	Debounce  time.Duration // collapse window; default 250ms
	Stability time.Duration // write-settle wait per path; default 500ms
}

// Watcher watches one or more root directories for *.md changes and
// delivers debounced batches to the apply function given to New.
type Watcher struct {
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	roots   []string
	cfg     Config
	apply   func([]Event) error
	pending map[string]pendingEvent
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

type pendingEvent struct {
	kind     EventKind
	lastSeen time.Time
}

// New builds a Watcher over roots, delivering settled batches to
// apply. apply is typically (*index.Index).ApplyBatch adapted to
// watcher.Event.
func New(roots []string, cfg Config, apply func([]Event) error) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	if cfg.Stability <= 0 {
		cfg.Stability = 500 * time.Millisecond
	}
	return &Watcher{
		fsw:     fsw,
		roots:   roots,
		cfg:     cfg,
		apply:   apply,
		pending: make(map[string]pendingEvent),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching every configured root recursively and
// delivering batches until ctx is cancelled or Stop is called. Start
// is non-blocking; the pipeline runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			logging.Get(logging.CategoryWatcher).Warn("watcher: failed to watch %s: %v", root, err)
		}
	}

	go w.run(ctx)
	return nil
}

// Stop halts the pipeline, draining one final batch before returning
// (spec.md §4.4 cancellation contract: no in-flight writes after stop).
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				logging.Get(logging.CategoryWatcher).Warn("watcher: failed to watch dir %s: %v", path, addErr)
			}
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flushFinal()
			return

		case <-w.stopCh:
			w.flushFinal()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatcher).Error("watcher: fsnotify error: %v", err)

		case <-ticker.C:
			w.flushSettled()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".md") {
		if ev.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if addErr := w.fsw.Add(ev.Name); addErr != nil {
					logging.Get(logging.CategoryWatcher).Warn("watcher: failed to watch new dir %s: %v", ev.Name, addErr)
				}
			}
		}
		return
	}

	var kind EventKind
	switch {
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		kind = EventDelete
	case ev.Op&fsnotify.Create != 0:
		kind = EventAdd
	case ev.Op&fsnotify.Write != 0:
		kind = EventChange
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	prior, exists := w.pending[ev.Name]
	// Last event type wins, except add->change collapses back to add
	// and anything->delete collapses to delete (spec.md §4.4).
	merged := kind
	if exists {
		switch {
		case kind == EventDelete:
			merged = EventDelete
		case prior.kind == EventAdd && kind == EventChange:
			merged = EventAdd
		default:
			merged = kind
		}
	}
	w.pending[ev.Name] = pendingEvent{kind: merged, lastSeen: time.Now()}
}

// flushSettled moves events whose debounce+stability window has
// elapsed into a batch and applies it.
func (w *Watcher) flushSettled() {
	now := time.Now()
	settleWindow := w.cfg.Debounce + w.cfg.Stability

	w.mu.Lock()
	var batch []Event
	for path, pe := range w.pending {
		if now.Sub(pe.lastSeen) >= settleWindow {
			batch = append(batch, Event{Path: path, Kind: pe.kind})
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	w.deliver(batch)
}

// flushFinal delivers every still-pending event regardless of settle
// time, used on shutdown so no change is silently dropped.
func (w *Watcher) flushFinal() {
	w.mu.Lock()
	var batch []Event
	for path, pe := range w.pending {
		batch = append(batch, Event{Path: path, Kind: pe.kind})
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.deliver(batch)
}

func (w *Watcher) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	sortParentsFirst(batch)
	if err := w.apply(batch); err != nil {
		logging.Get(logging.CategoryWatcher).Error("watcher: apply batch failed: %v", err)
	}
}

// sortParentsFirst orders a batch by path depth ascending so cascading
// deletes never violate foreign keys downstream (spec.md §4.4 ordering
// contract).
func sortParentsFirst(batch []Event) {
	for i := 1; i < len(batch); i++ {
		for j := i; j > 0 && depth(batch[j].Path) < depth(batch[j-1].Path); j-- {
			batch[j], batch[j-1] = batch[j-1], batch[j]
		}
	}
}

func depth(path string) int {
	return strings.Count(filepath.Clean(path), string(os.PathSeparator))
}
