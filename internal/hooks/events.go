// Package hooks runs external handlers (shell scripts, webhooks, structured
// stdio lines) when the recorder reports a lifecycle event. Execution is
// asynchronous and bounded; a slow or failing hook never stalls recording.
package hooks

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a recorder lifecycle event.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionEnded     EventType = "session_ended"
	EventSegmentFinalized EventType = "segment_finalized"
	EventExportWritten    EventType = "export_written"
	EventRecordingError   EventType = "recording_error"
)

// AllEvents lists every event type in a stable order.
var AllEvents = []EventType{
	EventSessionStarted,
	EventSessionEnded,
	EventSegmentFinalized,
	EventExportWritten,
	EventRecordingError,
}

// ParseEventType validates s against the known event types.
func ParseEventType(s string) (EventType, bool) {
	for _, e := range AllEvents {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// Event is a single notification delivered to hooks.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  int64          `json:"timestamp"`
	SessionDir string         `json:"session_dir,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a new event with a random id and the current time.
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]any),
	}
}

func (e *Event) WithSessionDir(dir string) *Event {
	e.SessionDir = dir
	return e
}

func (e *Event) WithData(key string, value any) *Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

func (e *Event) String() string {
	if e.SessionDir != "" {
		return string(e.Type) + ":" + e.SessionDir
	}
	return string(e.Type)
}
