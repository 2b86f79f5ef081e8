package main

import (
	"time"

	"github.com/nrvault/memtask/internal/broadcast"
)

// Frame is one line-delimited JSON message sent to a dashboard
// connection (spec.md §6's change protocol). Every frame must parse on
// the receiving end; a connection that sends one that doesn't is
// closed.
type Frame struct {
	Type      string      `json:"type"` // "file_change" | "task_change" | "automation"
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// frameData is the payload shape for "file_change"/"task_change" frames.
// Kind distinguishes a task_change frame raised by a memory write from
// one raised by a task write; spec.md §6 names only the two frame
// types, so memory and task updates share "task_change" and are told
// apart by this field.
type frameData struct {
	Action string `json:"action"` // "add" | "change" | "delete"
	Kind   string `json:"kind,omitempty"`
	ID     string `json:"id,omitempty"`
	File   string `json:"file,omitempty"`
}

// frameFor translates a broadcast.ChangeEvent into the wire frame
// shape dashboards expect. An event carrying a non-nil Data payload is
// an automation trigger (spec.md §5/§6's "automation" frame), not a
// plain add/change/delete notice, and is passed through as-is rather
// than squeezed into the file_change/task_change shape.
func frameFor(ev broadcast.ChangeEvent) Frame {
	if ev.Data != nil {
		return Frame{Type: "automation", Event: ev.Action, Data: ev.Data, Timestamp: ev.Timestamp}
	}
	switch ev.Topic {
	case broadcast.TopicMemory:
		return Frame{Type: "task_change", Data: frameData{Action: ev.Action, Kind: "memory", ID: ev.ID}, Timestamp: ev.Timestamp}
	case broadcast.TopicTask:
		return Frame{Type: "task_change", Data: frameData{Action: ev.Action, Kind: "task", ID: ev.ID}, Timestamp: ev.Timestamp}
	default:
		return Frame{Type: "file_change", Data: frameData{Action: ev.Action, File: ev.ID}, Timestamp: ev.Timestamp}
	}
}
