package upload

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle phase of an upload session.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StatePaused       State = "paused"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateExpired      State = "expired"
	StateCancelled    State = "cancelled"
)

// Terminal reports whether no further transitions are possible from the state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateExpired, StateCancelled:
		return true
	}
	return false
}

// Session is a read-only snapshot of one tracked upload.
type Session struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	FileName       string    `json:"file_name"`
	MimeType       string    `json:"mime_type"`
	TotalSize      int64     `json:"total_size"`
	ChunkSize      int64     `json:"chunk_size"`
	ChunkCount     int       `json:"chunk_count"`
	State          State     `json:"state"`
	UploadedSize   int64     `json:"uploaded_size"`
	UploadedChunks int       `json:"uploaded_chunks"`
	ExpectedSHA256 string    `json:"expected_sha256,omitempty"`
	TargetBucket   string    `json:"target_bucket,omitempty"`
	Location       string    `json:"location,omitempty"`
	ContentHash    string    `json:"content_hash,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ChunkRecord tracks one chunk of a session.
type ChunkRecord struct {
	Index       int       `json:"index"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256,omitempty"`
	Retries     int       `json:"retries"`
	Uploaded    bool      `json:"uploaded"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at,omitempty"`
}

// CreateInput carries the caller-supplied parameters for a new session.
type CreateInput struct {
	FileName       string
	TotalSize      int64
	MimeType       string
	ChunkSize      int64
	ExpectedSHA256 string
	TargetBucket   string
}

// ChunkResult reports the session after a successful chunk submission.
type ChunkResult struct {
	Index          int     `json:"index"`
	UploadedSize   int64   `json:"uploaded_size"`
	UploadedChunks int     `json:"uploaded_chunks"`
	ChunkCount     int     `json:"chunk_count"`
	Percent        float64 `json:"percent"`
	State          State   `json:"state"`
	Completed      bool    `json:"completed"`
	Location       string  `json:"location,omitempty"`
}

// ProgressSnapshot is the read-only progress view of a session.
type ProgressSnapshot struct {
	SessionID      uuid.UUID `json:"session_id"`
	State          State     `json:"state"`
	UploadedSize   int64     `json:"uploaded_size"`
	TotalSize      int64     `json:"total_size"`
	UploadedChunks int       `json:"uploaded_chunks"`
	ChunkCount     int       `json:"chunk_count"`
	Percent        float64   `json:"percent"`
	// SpeedBps is the smoothed throughput in bytes per second.
	SpeedBps float64 `json:"speed_bps"`
	// ETA is meaningful only when HasEstimate is true.
	ETA           time.Duration `json:"eta_ns"`
	HasEstimate   bool          `json:"has_estimate"`
	PendingChunks []int         `json:"pending_chunks,omitempty"`
}

// StoredObject is what the storage backend reports for a persisted object.
type StoredObject struct {
	Location    string
	ContentHash string
}

// ObjectInfo describes the assembled object handed to the storage backend.
type ObjectInfo struct {
	SessionID uuid.UUID
	OwnerID   uuid.UUID
	FileName  string
	MimeType  string
	Bucket    string
}
