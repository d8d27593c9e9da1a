package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abduss/goupload/internal/config"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChunkStore persists raw chunk bytes keyed by (session, index). A successful
// Put must be readable by a subsequent Get within the same process lifetime.
type ChunkStore interface {
	Put(ctx context.Context, sessionID uuid.UUID, index int, data []byte) error
	Get(ctx context.Context, sessionID uuid.UUID, index int) (io.ReadCloser, error)
	DeleteAll(ctx context.Context, sessionID uuid.UUID) error
	Sessions(ctx context.Context) ([]uuid.UUID, error)
}

// ObjectBackend receives the assembled object. open yields a fresh stream per
// call so adapters may retry a failed transfer from the beginning.
type ObjectBackend interface {
	Store(ctx context.Context, info ObjectInfo, open func() (io.ReadCloser, error), size int64) (StoredObject, error)
}

// recordStore mirrors session and chunk state to durable storage. Writes are
// best-effort: failures are logged and never block ingestion.
type recordStore interface {
	SaveSession(ctx context.Context, snap Session) error
	SaveChunk(ctx context.Context, sessionID uuid.UUID, rec ChunkRecord) error
}

// Service is the session registry: the single source of truth for upload
// lifecycle and chunk completion bookkeeping. Sessions live in an in-memory
// arena keyed by id; each entry serializes its own mutations so no operation
// ever holds a lock across unrelated sessions.
type Service struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	records recordStore
	chunks  ChunkStore
	backend ObjectBackend
	cfg     config.UploadConfig
	log     *zap.Logger
	clock   Clock

	obsMu     sync.Mutex
	observers []func(Event)
}

// NewService constructs the upload service.
func NewService(records recordStore, chunks ChunkStore, backend ObjectBackend, cfg config.UploadConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		sessions: make(map[uuid.UUID]*session),
		records:  records,
		chunks:   chunks,
		backend:  backend,
		cfg:      withDefaults(cfg),
		log:      log,
		clock:    systemClock{},
	}
}

func withDefaults(cfg config.UploadConfig) config.UploadConfig {
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 1 * units.MiB
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = 32 * units.MiB
	}
	if cfg.MaxChunkRetries <= 0 {
		cfg.MaxChunkRetries = 5
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 500 * time.Millisecond
	}
	if cfg.RetryBackoffCap <= 0 {
		cfg.RetryBackoffCap = 30 * time.Second
	}
	if cfg.MaxSessionConcurrency <= 0 {
		cfg.MaxSessionConcurrency = 4
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.FailedGrace <= 0 {
		cfg.FailedGrace = time.Hour
	}
	if cfg.ProgressWindow <= 0 {
		cfg.ProgressWindow = 8
	}
	if cfg.MaxFilenameLength <= 0 {
		cfg.MaxFilenameLength = 255
	}
	return cfg
}

// Create validates the input against policy, computes the chunk layout and
// registers a new active session.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (Session, error) {
	if ownerID == uuid.Nil {
		return Session{}, &ValidationError{Field: "owner", Reason: "must be set"}
	}
	if err := s.validateCreate(in); err != nil {
		return Session{}, err
	}
	chunkSize, err := s.resolveChunkSize(in.TotalSize, in.ChunkSize)
	if err != nil {
		return Session{}, err
	}
	if s.cfg.MaxOwnerActiveBytes > 0 {
		// Best effort under concurrent creates: two racing sessions may
		// together overshoot the quota by one declared size.
		if used := s.ownerActiveBytes(ownerID); used+in.TotalSize > s.cfg.MaxOwnerActiveBytes {
			return Session{}, &ValidationError{
				Field: "total_size",
				Reason: fmt.Sprintf("active uploads quota of %s exceeded",
					units.BytesSize(float64(s.cfg.MaxOwnerActiveBytes))),
			}
		}
	}

	now := s.clock.Now()
	e := newSession(uuid.New(), ownerID, in, chunkSize, now, s.cfg.SessionTTL, s.cfg.ProgressWindow, s.cfg.MaxSessionConcurrency)
	e.state = StateActive

	// Snapshot before publishing the entry to the arena.
	snap := e.snapshot()
	ev := e.event(EventSessionCreated, -1, now)

	s.mu.Lock()
	s.sessions[e.id] = e
	s.mu.Unlock()

	s.persistSession(ctx, snap)
	s.emit(ev)
	return snap, nil
}

// SubmitChunk validates and ingests one chunk. Resubmitting an uploaded chunk
// with identical content is an idempotent success; the submission that
// uploads the last outstanding chunk performs reassembly and finalization
// synchronously before returning.
func (s *Service) SubmitChunk(ctx context.Context, ownerID, sessionID uuid.UUID, index int, data []byte, declaredHash string) (ChunkResult, error) {
	e, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return ChunkResult{}, err
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return ChunkResult{}, fmt.Errorf("acquire submission slot: %w", err)
	}
	defer e.slots.Release(1)

	e.mu.Lock()
	now := s.clock.Now()

	if expired, evs := s.expireLocked(ctx, e, now); expired {
		e.mu.Unlock()
		s.emit(evs...)
		return ChunkResult{}, ErrSessionExpired
	}
	if e.state != StateActive {
		e.mu.Unlock()
		return ChunkResult{}, ErrSessionNotActive
	}
	if index < 0 || index >= len(e.chunks) {
		e.mu.Unlock()
		return ChunkResult{}, &ValidationError{
			Field:  "index",
			Reason: fmt.Sprintf("must be in [0, %d)", len(e.chunks)),
		}
	}

	sum := sha256.Sum256(data)
	computed := hex.EncodeToString(sum[:])
	rec := &e.chunks[index]

	if rec.Uploaded {
		// First valid upload for an index wins; identical bytes are an
		// idempotent success, conflicting bytes are rejected.
		if computed != rec.SHA256 {
			e.mu.Unlock()
			return ChunkResult{}, &ValidationError{
				Field:  "chunk",
				Reason: fmt.Sprintf("index %d already uploaded with different content", index),
			}
		}
		res := e.chunkResult(index)
		e.mu.Unlock()
		return res, nil
	}

	if int64(len(data)) != rec.Size {
		return s.rejectChunkLocked(ctx, e, rec, now,
			&SizeMismatchError{Index: index, Expected: rec.Size, Actual: int64(len(data))})
	}
	if declaredHash != "" && !strings.EqualFold(declaredHash, computed) {
		return s.rejectChunkLocked(ctx, e, rec, now,
			&HashMismatchError{Index: index, Expected: strings.ToLower(declaredHash), Actual: computed})
	}

	if err := s.chunks.Put(ctx, e.id, index, data); err != nil {
		return s.rejectChunkLocked(ctx, e, rec, now, fmt.Errorf("store chunk %d: %w", index, err))
	}

	rec.Uploaded = true
	rec.SHA256 = computed
	rec.LastAttempt = now
	rec.UploadedAt = now
	e.uploadedSize += rec.Size
	e.uploadedChunks++
	e.lastActivity = now
	if s.cfg.SlidingTTL {
		e.expiresAt = now.Add(s.cfg.SessionTTL)
	}
	e.window.observe(now, rec.Size)

	s.persistChunk(ctx, e.id, *rec)
	s.persistSession(ctx, e.snapshot())

	evs := []Event{e.event(EventChunkAccepted, index, now)}

	if e.uploadedChunks == len(e.chunks) {
		finEvs, err := s.finalizeLocked(ctx, e)
		evs = append(evs, finEvs...)
		if err != nil {
			e.mu.Unlock()
			s.emit(evs...)
			return ChunkResult{}, err
		}
	}

	res := e.chunkResult(index)
	e.mu.Unlock()
	s.emit(evs...)
	return res, nil
}

// Progress returns the read-only progress view. It works for any session
// known to the registry, terminal states included.
func (s *Service) Progress(ctx context.Context, ownerID, sessionID uuid.UUID) (ProgressSnapshot, error) {
	e, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return ProgressSnapshot{}, err
	}

	e.mu.Lock()
	_, evs := s.expireLocked(ctx, e, s.clock.Now())
	snap := e.progress()
	e.mu.Unlock()
	s.emit(evs...)
	return snap, nil
}

// Get returns a snapshot of one owned session.
func (s *Service) Get(ctx context.Context, ownerID, sessionID uuid.UUID) (Session, error) {
	e, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	_, evs := s.expireLocked(ctx, e, s.clock.Now())
	snap := e.snapshot()
	e.mu.Unlock()
	s.emit(evs...)
	return snap, nil
}

// Pause suspends an active session.
func (s *Service) Pause(ctx context.Context, ownerID, sessionID uuid.UUID) (Session, error) {
	e, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	now := s.clock.Now()
	if expired, evs := s.expireLocked(ctx, e, now); expired {
		e.mu.Unlock()
		s.emit(evs...)
		return Session{}, ErrSessionExpired
	}
	if e.state != StateActive {
		e.mu.Unlock()
		return Session{}, ErrInvalidTransition
	}
	e.state = StatePaused
	e.lastActivity = now
	s.persistSession(ctx, e.snapshot())
	snap := e.snapshot()
	ev := e.event(EventSessionPaused, -1, now)
	e.mu.Unlock()

	s.emit(ev)
	return snap, nil
}

// Resume reactivates a paused session.
func (s *Service) Resume(ctx context.Context, ownerID, sessionID uuid.UUID) (Session, error) {
	e, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	now := s.clock.Now()
	if expired, evs := s.expireLocked(ctx, e, now); expired {
		e.mu.Unlock()
		s.emit(evs...)
		return Session{}, ErrSessionExpired
	}
	if e.state != StatePaused {
		e.mu.Unlock()
		return Session{}, ErrInvalidTransition
	}
	e.state = StateActive
	e.lastActivity = now
	s.persistSession(ctx, e.snapshot())
	snap := e.snapshot()
	ev := e.event(EventSessionResumed, -1, now)
	e.mu.Unlock()

	s.emit(ev)
	return snap, nil
}

// Cancel terminates a non-terminal session, synchronously reclaims its chunk
// storage and removes it from the registry. In-flight submissions observe the
// cancelled state and fail with ErrSessionNotActive.
func (s *Service) Cancel(ctx context.Context, ownerID, sessionID uuid.UUID) error {
	e, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return ErrInvalidTransition
	}
	now := s.clock.Now()
	e.state = StateCancelled
	e.lastActivity = now
	s.persistSession(ctx, e.snapshot())
	ev := e.event(EventSessionCancelled, -1, now)
	e.mu.Unlock()

	if err := s.chunks.DeleteAll(ctx, sessionID); err != nil {
		s.log.Warn("reclaim chunks after cancel",
			zap.String("session_id", sessionID.String()), zap.Error(err))
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// ListForOwner returns snapshots of the owner's sessions, newest first.
func (s *Service) ListForOwner(ownerID uuid.UUID) []Session {
	s.mu.RLock()
	entries := make([]*session, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []Session
	for _, e := range entries {
		if e.owner != ownerID {
			continue
		}
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ownerActiveBytes sums the declared sizes of the owner's non-terminal sessions.
func (s *Service) ownerActiveBytes(ownerID uuid.UUID) int64 {
	s.mu.RLock()
	entries := make([]*session, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var used int64
	for _, e := range entries {
		if e.owner != ownerID {
			continue
		}
		e.mu.Lock()
		if !e.state.Terminal() {
			used += e.totalSize
		}
		e.mu.Unlock()
	}
	return used
}

// Restore repopulates the arena from durable records, typically at process
// start. Terminal and already-expired sessions are skipped; their leftover
// chunk storage is reconciled by the sweeper. Returns the number restored.
func (s *Service) Restore(stored []StoredSession) int {
	now := s.clock.Now()
	restored := 0
	for _, st := range stored {
		snap := st.Session
		if snap.State.Terminal() || !now.Before(snap.ExpiresAt) {
			continue
		}
		if snap.ChunkSize <= 0 || snap.TotalSize <= 0 {
			continue
		}

		e := newSession(snap.ID, snap.OwnerID, CreateInput{
			FileName:       snap.FileName,
			TotalSize:      snap.TotalSize,
			MimeType:       snap.MimeType,
			ExpectedSHA256: snap.ExpectedSHA256,
			TargetBucket:   snap.TargetBucket,
		}, snap.ChunkSize, snap.CreatedAt, 0, s.cfg.ProgressWindow, s.cfg.MaxSessionConcurrency)
		e.state = snap.State
		e.lastActivity = snap.LastActivity
		e.expiresAt = snap.ExpiresAt

		for _, c := range st.Chunks {
			if c.Index < 0 || c.Index >= len(e.chunks) || !c.Uploaded {
				continue
			}
			rec := &e.chunks[c.Index]
			if rec.Uploaded {
				continue
			}
			rec.Uploaded = true
			rec.SHA256 = c.SHA256
			rec.Retries = c.Retries
			rec.LastAttempt = c.LastAttempt
			rec.UploadedAt = c.UploadedAt
			e.uploadedSize += rec.Size
			e.uploadedChunks++
		}

		s.mu.Lock()
		s.sessions[e.id] = e
		s.mu.Unlock()
		restored++
	}
	return restored
}

func (s *Service) lookup(ownerID, sessionID uuid.UUID) (*session, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || e.owner != ownerID {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// expireLocked flips a live session to expired once its deadline passes.
// Chunk storage reclamation is left to the sweeper. Callers hold e.mu.
func (s *Service) expireLocked(ctx context.Context, e *session, now time.Time) (bool, []Event) {
	if e.state == StateExpired {
		return true, nil
	}
	if e.state.Terminal() || now.Before(e.expiresAt) {
		return false, nil
	}
	e.state = StateExpired
	s.persistSession(ctx, e.snapshot())
	return true, []Event{e.event(EventSessionExpired, -1, now)}
}

// rejectChunkLocked applies the retry policy after a failed attempt and
// releases the session lock.
func (s *Service) rejectChunkLocked(ctx context.Context, e *session, rec *ChunkRecord, now time.Time, cause error) (ChunkResult, error) {
	attempt := rec.Retries
	rec.Retries++
	rec.LastAttempt = now
	s.persistChunk(ctx, e.id, *rec)

	evs := []Event{e.event(EventChunkRejected, rec.Index, now)}

	if rec.Retries >= s.cfg.MaxChunkRetries {
		evs = append(evs, s.failLocked(ctx, e, now,
			fmt.Sprintf("chunk %d: retries exhausted: %v", rec.Index, cause))...)
		e.mu.Unlock()
		s.emit(evs...)
		return ChunkResult{}, &TerminalError{Stage: "chunk", Index: rec.Index, Err: cause}
	}

	e.mu.Unlock()
	s.emit(evs...)
	return ChunkResult{}, &RetryableError{
		Index:      rec.Index,
		Attempt:    rec.Retries,
		RetryAfter: retryBackoff(s.cfg.RetryBackoffBase, s.cfg.RetryBackoffCap, attempt),
		Err:        cause,
	}
}

// failLocked transitions the session to failed. Chunk storage is retained for
// diagnosis until the sweeper's grace period elapses. Callers hold e.mu.
func (s *Service) failLocked(ctx context.Context, e *session, now time.Time, reason string) []Event {
	e.state = StateFailed
	e.failureReason = reason
	e.lastActivity = now
	s.persistSession(ctx, e.snapshot())
	return []Event{e.event(EventSessionFailed, -1, now)}
}

func (s *Service) persistSession(ctx context.Context, snap Session) {
	if err := s.records.SaveSession(ctx, snap); err != nil {
		s.log.Warn("persist session record",
			zap.String("session_id", snap.ID.String()), zap.Error(err))
	}
}

func (s *Service) persistChunk(ctx context.Context, sessionID uuid.UUID, rec ChunkRecord) {
	if err := s.records.SaveChunk(ctx, sessionID, rec); err != nil {
		s.log.Warn("persist chunk record",
			zap.String("session_id", sessionID.String()),
			zap.Int("chunk_index", rec.Index), zap.Error(err))
	}
}
