package upload

import (
	"time"

	"github.com/google/uuid"
)

// EventType labels a session lifecycle notification.
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventChunkAccepted    EventType = "chunk_accepted"
	EventChunkRejected    EventType = "chunk_rejected"
	EventSessionPaused    EventType = "session_paused"
	EventSessionResumed   EventType = "session_resumed"
	EventSessionCompleted EventType = "session_completed"
	EventSessionFailed    EventType = "session_failed"
	EventSessionExpired   EventType = "session_expired"
	EventSessionCancelled EventType = "session_cancelled"
)

// Event is delivered to registered observers on session mutations.
// ChunkIndex is -1 and ChunkSize 0 for events not tied to a single chunk.
type Event struct {
	Type         EventType
	SessionID    uuid.UUID
	OwnerID      uuid.UUID
	ChunkIndex   int
	ChunkSize    int64
	UploadedSize int64
	TotalSize    int64
	Reason       string
	At           time.Time
}

// Notify registers an observer for session events. Observers are invoked
// synchronously after the originating mutation commits and must not call back
// into the Service.
func (s *Service) Notify(fn func(Event)) {
	if fn == nil {
		return
	}
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Service) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.obsMu.Lock()
	observers := make([]func(Event), len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}
