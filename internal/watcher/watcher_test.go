package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	batches [][]Event
}

func (c *collector) apply(batch []Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]Event(nil), batch...)
	c.batches = append(c.batches, cp)
	return nil
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func waitForEvents(t *testing.T, c *collector, min int, timeout time.Duration) []Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if evs := c.all(); len(evs) >= min {
			return evs
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", min, len(c.all()))
	return nil
}

func TestWatcherDeliversAddEvent(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	w, err := New([]string{root}, Config{Debounce: 20 * time.Millisecond, Stability: 20 * time.Millisecond}, c.apply)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(root, "task-1.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	events := waitForEvents(t, c, 1, 2*time.Second)
	require.Equal(t, path, events[0].Path)
	require.Equal(t, EventAdd, events[0].Kind)
}

func TestWatcherIgnoresNonMarkdownFiles(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	w, err := New([]string{root}, Config{Debounce: 20 * time.Millisecond, Stability: 20 * time.Millisecond}, c.apply)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, c.all())
}

func TestWatcherCollapsesRapidWritesToOneChangeEvent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "task-1.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c := &collector{}
	w, err := New([]string{root}, Config{Debounce: 30 * time.Millisecond, Stability: 30 * time.Millisecond}, c.apply)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	events := waitForEvents(t, c, 1, 2*time.Second)
	count := 0
	for _, e := range events {
		if e.Path == path {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestWatcherDeliversDeleteEvent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "task-1.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c := &collector{}
	w, err := New([]string{root}, Config{Debounce: 20 * time.Millisecond, Stability: 20 * time.Millisecond}, c.apply)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.Remove(path))

	events := waitForEvents(t, c, 1, 2*time.Second)
	require.Equal(t, EventDelete, events[len(events)-1].Kind)
}

func TestWatcherFlushesFinalBatchOnStop(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	// Debounce/stability longer than the test waits, so only Stop's
	// final flush should deliver the event.
	w, err := New([]string{root}, Config{Debounce: 5 * time.Second, Stability: 5 * time.Second}, c.apply)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	path := filepath.Join(root, "task-1.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, c.all())

	w.Stop()
	require.NotEmpty(t, c.all())
}

func TestSortParentsFirstOrdersByDepth(t *testing.T) {
	batch := []Event{
		{Path: "/a/b/c.md", Kind: EventAdd},
		{Path: "/a.md", Kind: EventAdd},
		{Path: "/a/b.md", Kind: EventAdd},
	}
	sortParentsFirst(batch)
	require.Equal(t, "/a.md", batch[0].Path)
	require.Equal(t, "/a/b.md", batch[1].Path)
	require.Equal(t, "/a/b/c.md", batch[2].Path)
}
