package watcher

import "github.com/nrvault/memtask/internal/index"

// IndexSink adapts an *index.Index into the apply function New
// expects, converting watcher.Event to index.Event. Kept separate from
// watcher.go so the core debounce pipeline does not reference
// internal/index; this file is where package watcher imports it.
func IndexSink(ix *index.Index) func([]Event) error {
	return func(events []Event) error {
		converted := make([]index.Event, len(events))
		for i, e := range events {
			converted[i] = index.Event{Path: e.Path, Kind: index.EventKind(e.Kind)}
		}
		return ix.ApplyBatch(converted)
	}
}
