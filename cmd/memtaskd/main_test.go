package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrvault/memtask/internal/broadcast"
)

// captureOutput redirects stdout for the duration of fn, the same
// pipe-and-copy trick the teacher's CLI tests use.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = orig
	return <-done
}

func withTempRoot(t *testing.T) {
	t.Helper()
	rootDir = t.TempDir()
	configPath = ""
}

func TestRunStatusOnEmptyStore(t *testing.T) {
	withTempRoot(t)

	output := captureOutput(t, func() {
		if err := runStatus(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runStatus returned error: %v", err)
		}
	})

	if !strings.Contains(output, "tasks:     0") {
		t.Fatalf("expected zero tasks reported, got: %s", output)
	}
	if !strings.Contains(output, "memories:  0") {
		t.Fatalf("expected zero memories reported, got: %s", output)
	}
}

func TestRunSyncOnEmptyStore(t *testing.T) {
	withTempRoot(t)

	output := captureOutput(t, func() {
		if err := runSync(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runSync returned error: %v", err)
		}
	})

	if !strings.Contains(output, "sync complete") {
		t.Fatalf("expected sync completion message, got: %s", output)
	}
}

func TestRunMigrateStatusOnEmptyStore(t *testing.T) {
	withTempRoot(t)

	output := captureOutput(t, func() {
		if err := runMigrateStatus(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runMigrateStatus returned error: %v", err)
		}
	})

	if !strings.Contains(output, "total=0") {
		t.Fatalf("expected an empty-tree migration status, got: %s", output)
	}
}

func TestFrameForTranslatesTopics(t *testing.T) {
	ev := broadcast.ChangeEvent{Topic: broadcast.TopicMemory, Action: "add", ID: "m1", Timestamp: time.Now()}
	f := frameFor(ev)
	if f.Type != "task_change" {
		t.Fatalf("expected task_change frame for a memory event, got %s", f.Type)
	}
	data, ok := f.Data.(frameData)
	if !ok || data.Kind != "memory" {
		t.Fatalf("expected memory-kind data, got %#v", f.Data)
	}
}

func TestFrameForAutomationEvent(t *testing.T) {
	ev := broadcast.ChangeEvent{
		Topic: broadcast.TopicTask, Action: "auto_link", ID: "t1", Timestamp: time.Now(),
		Data: map[string]interface{}{"task_id": "t1", "trigger": "task_added"},
	}
	f := frameFor(ev)
	if f.Type != "automation" {
		t.Fatalf("expected automation frame for a Data-bearing event, got %s", f.Type)
	}
	if f.Event != "auto_link" {
		t.Fatalf("expected event name auto_link, got %s", f.Event)
	}
}

func TestFrameForFileChange(t *testing.T) {
	ev := broadcast.ChangeEvent{Topic: broadcast.FileChangeTopic("/tmp/tasks"), Action: "change", ID: "/tmp/tasks/a.md", Timestamp: time.Now()}
	f := frameFor(ev)
	if f.Type != "file_change" {
		t.Fatalf("expected file_change frame, got %s", f.Type)
	}
}
