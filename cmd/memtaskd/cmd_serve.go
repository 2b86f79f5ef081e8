package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrvault/memtask/internal/broadcast"
	"github.com/nrvault/memtask/internal/index"
	"github.com/nrvault/memtask/internal/linker"
	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/memory"
	"github.com/nrvault/memtask/internal/migrate"
	"github.com/nrvault/memtask/internal/pathmgr"
	"github.com/nrvault/memtask/internal/ratelimit"
	"github.com/nrvault/memtask/internal/task"
	"github.com/nrvault/memtask/internal/watcher"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watcher/indexer/broadcaster as a long-lived daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "127.0.0.1:4777", "Dashboard change-protocol listen address")
}

// runServe wires every package into a running daemon: each watcher
// batch is applied to the index and then fanned out through the
// broadcaster, and
// newly added memories/tasks run through the linker — all guarded by
// the rate limiter so a burst of file events can't retrigger itself
// (spec.md §5).
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Get(logging.CategoryBoot)

	taskStore, err := task.Open(cfg.TasksRoot)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	memStore := memory.New(cfg.MemoriesRoot)

	idx, err := index.Open(cfg.IndexPath, cfg.TasksRoot)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()
	if err := idx.FullSync(); err != nil {
		return fmt.Errorf("initial full sync: %w", err)
	}
	if cfg.Watcher.PeriodicSyncCron != "" {
		if err := idx.StartPeriodicSync(cfg.Watcher.PeriodicSyncCron); err != nil {
			return fmt.Errorf("start periodic sync: %w", err)
		}
	}

	paths := pathmgr.New(pathmgr.DetectPlatform())
	migrator := migrate.New(cfg.TasksRoot, migrate.Config{
		LockTimeoutSec: cfg.Migration.LockTimeoutSec,
		MaxRetries:     cfg.Migration.MaxRetries,
		BackupDir:      cfg.Migration.BackupDir,
		TempDir:        cfg.Migration.TempDir,
	})
	_ = newSemanticManager(taskStore, paths, migrator, idx) // available to future automation hooks

	bus := broadcast.New(cfg.Broadcast.Capacity, cfg.Broadcast.SubscriberTimeout())
	defer bus.Close()

	lk := linker.New(taskStore, memStore, linker.DefaultThreshold)
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.TokensPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Debounce:          cfg.RateLimit.PerKeyDebounce(),
	})

	taskWatcher, err := watcher.New([]string{cfg.TasksRoot}, watcher.Config{
		Debounce:  cfg.Watcher.Debounce(),
		Stability: cfg.Watcher.Stability(),
	}, taskApply(idx, taskStore, memStore, lk, bus, cfg.TasksRoot, limiter))
	if err != nil {
		return fmt.Errorf("create task watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := taskWatcher.Start(ctx); err != nil {
		return fmt.Errorf("start task watcher: %w", err)
	}
	defer taskWatcher.Stop()

	var memWatcher *watcher.Watcher
	if cfg.Watcher.WatchMemoriesRoot {
		memWatcher, err = watcher.New([]string{cfg.MemoriesRoot}, watcher.Config{
			Debounce:  cfg.Watcher.Debounce(),
			Stability: cfg.Watcher.Stability(),
		}, memoryApply(memStore, taskStore, lk, bus, cfg.MemoriesRoot, limiter))
		if err != nil {
			return fmt.Errorf("create memory watcher: %w", err)
		}
		if err := memWatcher.Start(ctx); err != nil {
			return fmt.Errorf("start memory watcher: %w", err)
		}
		defer memWatcher.Stop()
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	defer listener.Close()
	log.Info("serve: listening for dashboards on %s", listenAddr)
	go acceptLoop(ctx, listener, bus)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("serve: received shutdown signal, stopping")
	cancel()
	return nil
}

// acceptLoop accepts dashboard connections until ctx is cancelled.
func acceptLoop(ctx context.Context, listener net.Listener, bus *broadcast.Broadcaster) {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Get(logging.CategoryBroadcast).Warn("serve: accept failed: %v", err)
			continue
		}
		go serveDashboardConn(ctx, conn, bus)
	}
}

// serveDashboardConn streams change frames to one dashboard connection
// as line-delimited JSON (spec.md §6) until the connection closes or
// sends a frame that doesn't parse, following the same
// bufio.Scanner/json.Encoder-over-a-stream shape the MCP transport in
// the pack uses for its own line-delimited protocol.
func serveDashboardConn(ctx context.Context, conn net.Conn, bus *broadcast.Broadcaster) {
	defer conn.Close()
	log := logging.Get(logging.CategoryBroadcast)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskSub := bus.Subscribe(broadcast.TopicTask)
	memSub := bus.Subscribe(broadcast.TopicMemory)
	defer bus.Unsubscribe(taskSub)
	defer bus.Unsubscribe(memSub)

	encoder := json.NewEncoder(conn)

	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var probe map[string]interface{}
			if err := json.Unmarshal([]byte(line), &probe); err != nil {
				log.Warn("serve: unparsable client frame, closing connection: %v", err)
				cancel()
				return
			}
		}
		cancel()
	}()

	for {
		select {
		case <-connCtx.Done():
			return
		case ev, ok := <-taskSub.Events():
			if !ok {
				return
			}
			if err := encoder.Encode(frameFor(ev)); err != nil {
				return
			}
		case ev, ok := <-memSub.Events():
			if !ok {
				return
			}
			if err := encoder.Encode(frameFor(ev)); err != nil {
				return
			}
		case <-time.After(30 * time.Second):
			// idle keepalive tick; nothing to send
		}
	}
}

// relPath makes an absolute watcher event path relative to root, the
// form every store keys its files by.
func relPath(root, abs string) (string, error) {
	return filepath.Rel(root, abs)
}

// taskApply builds the watcher apply func for the tasks root: index
// first (so GetByID below sees the fresh row), then broadcast, then
// (rate-limited) link newly added tasks against existing memories.
func taskApply(idx *index.Index, tasks *task.Store, memories *memory.Store, lk *linker.Linker, bus *broadcast.Broadcaster, root string, limiter *ratelimit.Limiter) func([]watcher.Event) error {
	sink := watcher.IndexSink(idx)
	return func(events []watcher.Event) error {
		if err := sink(events); err != nil {
			return err
		}
		for _, e := range events {
			bus.Publish(broadcast.ChangeEvent{
				Topic:     broadcast.FileChangeTopic(root),
				Action:    string(e.Kind),
				ID:        e.Path,
				Timestamp: time.Now().UTC(),
			})
			if e.Kind != watcher.EventAdd {
				continue
			}
			rel, err := relPath(root, e.Path)
			if err != nil {
				continue
			}
			t, err := tasks.ByFilePath(rel)
			if err != nil {
				continue
			}
			bus.Publish(broadcast.ChangeEvent{Topic: broadcast.TopicTask, Action: "add", ID: t.ID, Timestamp: time.Now().UTC()})
			if !limiter.Allow("link:" + t.ID) {
				continue
			}
			lk.LinkTask(t)
			bus.Publish(broadcast.ChangeEvent{
				Topic: broadcast.TopicTask, Action: "auto_link", ID: t.ID, Timestamp: time.Now().UTC(),
				Data: map[string]interface{}{"task_id": t.ID, "trigger": "task_added"},
			})
		}
		return nil
	}
}

// memoryApply builds the watcher apply func for the memories root:
// broadcast every change, and (rate-limited) link newly added memories
// against existing tasks.
func memoryApply(memories *memory.Store, tasks *task.Store, lk *linker.Linker, bus *broadcast.Broadcaster, root string, limiter *ratelimit.Limiter) func([]watcher.Event) error {
	return func(events []watcher.Event) error {
		for _, e := range events {
			bus.Publish(broadcast.ChangeEvent{
				Topic:     broadcast.FileChangeTopic(root),
				Action:    string(e.Kind),
				ID:        e.Path,
				Timestamp: time.Now().UTC(),
			})
			if e.Kind != watcher.EventAdd {
				continue
			}
			rel, err := relPath(root, e.Path)
			if err != nil {
				continue
			}
			m, err := memories.Get(rel)
			if err != nil {
				continue
			}
			bus.Publish(broadcast.ChangeEvent{Topic: broadcast.TopicMemory, Action: "add", ID: m.ID, Timestamp: time.Now().UTC()})
			if !limiter.Allow("link:" + m.ID) {
				continue
			}
			lk.LinkMemory(m)
			bus.Publish(broadcast.ChangeEvent{
				Topic: broadcast.TopicMemory, Action: "auto_link", ID: m.ID, Timestamp: time.Now().UTC(),
				Data: map[string]interface{}{"memory_id": m.ID, "trigger": "memory_added"},
			})
		}
		return nil
	}
}
