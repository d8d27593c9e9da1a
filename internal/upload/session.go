package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// session is the registry's mutable entry for one upload. All fields below
// the mutex are guarded by it; slots caps concurrent chunk submissions and is
// acquired before the mutex.
type session struct {
	mu    sync.Mutex
	slots *semaphore.Weighted

	id             uuid.UUID
	owner          uuid.UUID
	fileName       string
	mimeType       string
	totalSize      int64
	chunkSize      int64
	expectedSHA256 string
	targetBucket   string

	state          State
	chunks         []ChunkRecord
	uploadedSize   int64
	uploadedChunks int

	location      string
	contentHash   string
	failureReason string

	createdAt    time.Time
	lastActivity time.Time
	expiresAt    time.Time

	window *sampleWindow
}

// newSession pre-populates the dense chunk map: every index carries its
// declared size, the last one the remainder.
func newSession(id, owner uuid.UUID, in CreateInput, chunkSize int64, now time.Time, ttl time.Duration, windowCap int, maxConcurrency int) *session {
	count := int((in.TotalSize + chunkSize - 1) / chunkSize)
	chunks := make([]ChunkRecord, count)
	for i := range chunks {
		size := chunkSize
		if i == count-1 {
			size = in.TotalSize - int64(count-1)*chunkSize
		}
		chunks[i] = ChunkRecord{Index: i, Size: size}
	}

	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	return &session{
		slots:          semaphore.NewWeighted(int64(maxConcurrency)),
		id:             id,
		owner:          owner,
		fileName:       in.FileName,
		mimeType:       normalizeMimeType(in.MimeType),
		totalSize:      in.TotalSize,
		chunkSize:      chunkSize,
		expectedSHA256: in.ExpectedSHA256,
		targetBucket:   in.TargetBucket,
		state:          StateInitializing,
		chunks:         chunks,
		createdAt:      now,
		lastActivity:   now,
		expiresAt:      now.Add(ttl),
		window:         newSampleWindow(windowCap, now),
	}
}

// snapshot copies the session into its exported read-only form.
// Callers must hold e.mu.
func (e *session) snapshot() Session {
	return Session{
		ID:             e.id,
		OwnerID:        e.owner,
		FileName:       e.fileName,
		MimeType:       e.mimeType,
		TotalSize:      e.totalSize,
		ChunkSize:      e.chunkSize,
		ChunkCount:     len(e.chunks),
		State:          e.state,
		UploadedSize:   e.uploadedSize,
		UploadedChunks: e.uploadedChunks,
		ExpectedSHA256: e.expectedSHA256,
		TargetBucket:   e.targetBucket,
		Location:       e.location,
		ContentHash:    e.contentHash,
		FailureReason:  e.failureReason,
		CreatedAt:      e.createdAt,
		LastActivity:   e.lastActivity,
		ExpiresAt:      e.expiresAt,
	}
}

// progress builds the progress view. Callers must hold e.mu.
func (e *session) progress() ProgressSnapshot {
	var pending []int
	for i := range e.chunks {
		if !e.chunks[i].Uploaded {
			pending = append(pending, i)
		}
	}

	eta, ok := e.window.estimate(e.totalSize - e.uploadedSize)
	return ProgressSnapshot{
		SessionID:      e.id,
		State:          e.state,
		UploadedSize:   e.uploadedSize,
		TotalSize:      e.totalSize,
		UploadedChunks: e.uploadedChunks,
		ChunkCount:     len(e.chunks),
		Percent:        percentOf(e.uploadedSize, e.totalSize),
		SpeedBps:       e.window.mean(),
		ETA:            eta,
		HasEstimate:    ok,
		PendingChunks:  pending,
	}
}

// chunkResult builds the submission result. Callers must hold e.mu.
func (e *session) chunkResult(index int) ChunkResult {
	return ChunkResult{
		Index:          index,
		UploadedSize:   e.uploadedSize,
		UploadedChunks: e.uploadedChunks,
		ChunkCount:     len(e.chunks),
		Percent:        percentOf(e.uploadedSize, e.totalSize),
		State:          e.state,
		Completed:      e.state == StateCompleted,
		Location:       e.location,
	}
}

func (e *session) event(t EventType, index int, now time.Time) Event {
	var chunkSize int64
	if index >= 0 && index < len(e.chunks) {
		chunkSize = e.chunks[index].Size
	}
	return Event{
		Type:         t,
		SessionID:    e.id,
		OwnerID:      e.owner,
		ChunkIndex:   index,
		ChunkSize:    chunkSize,
		UploadedSize: e.uploadedSize,
		TotalSize:    e.totalSize,
		Reason:       e.failureReason,
		At:           now,
	}
}
