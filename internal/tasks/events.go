package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/todosync/internal/realtime"
)

// Realtime event types.
const (
	EventCreated = "task_created"
	EventUpdated = "task_updated"
	EventDeleted = "task_deleted"
)

// Event is a decoded realtime task event.
type Event struct {
	Type string
	Task Task
}

// DecodeEvent interprets a realtime message as a task event.
func DecodeEvent(msg realtime.Message) (Event, error) {
	switch msg.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", msg.Type)
	}

	var t Task
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
	}
	if t.ID == "" {
		return Event{}, fmt.Errorf("decode %s: missing task id", msg.Type)
	}
	return Event{Type: msg.Type, Task: t}, nil
}

// NewEvent builds the realtime message announcing a change to t.
func NewEvent(eventType string, t Task) (realtime.Message, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return realtime.Message{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return realtime.Message{Type: eventType, Data: data}, nil
}

// ApplyEvent returns tasks with ev applied. Created tasks are appended unless
// already present, updates replace the matching task and deletes remove it.
// The input slice is not modified.
func ApplyEvent(tasks []Task, ev Event) []Task {
	out := make([]Task, 0, len(tasks)+1)
	found := false
	for _, t := range tasks {
		if t.ID != ev.Task.ID {
			out = append(out, t)
			continue
		}
		found = true
		if ev.Type != EventDeleted {
			out = append(out, ev.Task)
		}
	}
	if !found && ev.Type == EventCreated {
		out = append(out, ev.Task)
	}
	return out
}
